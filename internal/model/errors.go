// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, pet, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccountNotFound        = "ACCOUNT_NOT_FOUND"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail         = "DUPLICATE_EMAIL"
	ErrCodeVerificationFailed     = "VERIFICATION_ERROR"
	ErrCodeReconciliationConflict = "RECONCILIATION_CONFLICT"
	ErrCodePetNotFound            = "PET_NOT_FOUND"
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
)

// NewAccountNotFoundError はアカウント未登録エラーを生成する。
// ログイン時にのみ使用する。暗黙のアカウント作成は行わない。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "アカウントが見つかりません。",
		Category: "auth",
		Action:   "先にアカウントを登録してください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// どの検証段階で失敗したかは区別できないメッセージにする。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewVerificationError はIDトークン検証失敗エラーを生成する。
func NewVerificationError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationFailed,
		Message:  "Googleアカウントの検証に失敗しました。",
		Category: "auth",
		Action:   "再度Googleでログインしてください。",
	}
}

// NewReconciliationConflictError はアカウント照合の競合エラーを生成する。
// リトライ上限を超えた場合にのみ発生する。呼び出し側で再試行可能。
func NewReconciliationConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeReconciliationConflict,
		Message:  "アカウントの照合中に競合が発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPetNotFoundError はペット未作成エラーを生成する。
func NewPetNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePetNotFound,
		Message:  "ペットが見つかりません。",
		Category: "pet",
		Action:   "ログインし直してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は認証必須エラーを生成する。
// セッション不在・期限切れ・破棄済みのいずれでも同一のレスポンスとする。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}
