package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolationCode はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolationCode = "23505"

// ErrSubjectConflict はアカウントが既に別のfederated_subjectに
// 紐付いているため紐付けできないことを表す。
// 再試行しても解消しない決定的な競合として扱う。
var ErrSubjectConflict = errors.New("account is linked to a different federated subject")

// IsUniqueViolation はエラーが一意制約違反かを判定する。
// 同一identityに対する並行作成の競合検出に使用する。
// 呼び出し側は「他のリクエストが先に作成した」ものとして再読込する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}
