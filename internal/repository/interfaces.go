// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/tamago/internal/model"
)

// ProfileUpdate はアカウントの部分更新を表す。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	DisplayName          *string
	Email                *string
	PasswordHash         *string
	SoundEnabled         *bool
	NotificationsEnabled *bool
}

// IsEmpty は更新対象フィールドが1つもないかを返す。
func (u *ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Email == nil && u.PasswordHash == nil &&
		u.SoundEnabled == nil && u.NotificationsEnabled == nil
}

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail は正規化済みメールアドレスでアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByFederatedSubject は外部IdPのsubject IDでアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByFederatedSubject(ctx context.Context, subject string) (*model.Account, error)

	// CreateWithPet はアカウントとペットを同一トランザクションで作成する。
	// メールアドレスまたはfederated_subjectの一意制約違反は
	// IsUniqueViolationで判定可能なエラーとして返す。
	// ペット作成が失敗した場合はアカウント作成もロールバックされる。
	CreateWithPet(ctx context.Context, account *model.Account, pet *model.Pet) error

	// LinkFederatedSubject は既存アカウントにfederated_subjectを紐付ける。
	// 既に同じsubjectが紐付いている場合は何もせず成功する（冪等）。
	// 別のsubjectが紐付いている場合はErrSubjectConflictを
	// （errors.Isで判定可能な形で）返す。
	LinkFederatedSubject(ctx context.Context, accountID, subject string) error

	// UpdateProfile は指定フィールドのみを更新する（部分更新）。
	// 更新対象が存在しない場合はfalseを返す。
	// メールアドレスの一意制約違反はIsUniqueViolationで判定可能な
	// エラーとして返す。
	UpdateProfile(ctx context.Context, accountID string, update *ProfileUpdate) (bool, error)

	// UpdateAvatar は連携プロフィール画像のキャッシュを更新する。
	UpdateAvatar(ctx context.Context, accountID string, data []byte, mime string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。
	// 存在しない場合と期限切れの場合はどちらもnilを返す（区別しない）。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。
	// 存在しないIDの削除もエラーにならない（冪等）。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error

	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// PetRepository はペット状態の永続化インターフェース。
type PetRepository interface {
	// FindByOwnerID は指定アカウントのペットを取得する。
	// 見つからない場合はnilを返す。
	FindByOwnerID(ctx context.Context, ownerID string) (*model.Pet, error)

	// ApplyDelta はhunger/funに差分を適用し、更新後のペットを返す。
	// クランプ（[0,100]への飽和）は単一のUPDATE文内で行われるため、
	// 並行する書き込みがあっても古い読み取り値に対するクランプは発生しない。
	// ペットが存在しない場合はnilを返す。
	ApplyDelta(ctx context.Context, ownerID string, hungerDelta, funDelta int) (*model.Pet, error)

	// SetAvatar はペットのアバター識別子を更新し、更新後のペットを返す。
	// ペットが存在しない場合はnilを返す。
	SetAvatar(ctx context.Context, ownerID, avatarRef string) (*model.Pet, error)
}
