// Package model はドメインモデルを定義する。
package model

import "time"

// Account はサービス利用者のアカウントを表す。
// ローカル認証（メール+パスワード）とGoogle連携認証のどちらか、
// または両方に対応する。PasswordHashとFederatedSubjectの少なくとも
// 一方が設定されている必要がある。
type Account struct {
	ID          string
	Email       string
	DisplayName string

	// PasswordHash はargon2idでエンコードされたパスワードハッシュ。
	// 連携認証のみのアカウントではnil。
	PasswordHash *string

	// FederatedSubject は外部IdP（Google）のsubject ID。
	// ローカル認証のみのアカウントではnil。設定時は全アカウントで一意。
	FederatedSubject *string

	SoundEnabled         bool
	NotificationsEnabled bool

	// AvatarData は連携プロフィール画像のキャッシュ。未取得の場合はnil。
	AvatarData []byte
	AvatarMime string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLocal はローカル認証（パスワード）が設定されているかを返す。
func (a *Account) IsLocal() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// IsFederated は外部IdPと連携済みかを返す。
func (a *Account) IsFederated() bool {
	return a.FederatedSubject != nil && *a.FederatedSubject != ""
}

// ペットの初期値。新規アカウント作成時に使用する。
const (
	DefaultHunger    = 100
	DefaultFun       = 100
	DefaultAvatarRef = "default-avatar.png"

	// PetStatMin / PetStatMax はhunger/funの値域。
	// 範囲外への変異は拒否ではなく飽和（クランプ）させる。
	PetStatMin = 0
	PetStatMax = 100
)

// Pet はアカウントが所有する仮想ペットの状態を表す。
// アカウントごとに必ず0個または1個。
type Pet struct {
	OwnerID   string
	Hunger    int
	Fun       int
	AvatarRef string
	UpdatedAt time.Time
}

// NewDefaultPet は初期状態のペットを生成する。
// アカウントの初回作成時にのみ呼ばれる。
func NewDefaultPet(ownerID string) *Pet {
	return &Pet{
		OwnerID:   ownerID,
		Hunger:    DefaultHunger,
		Fun:       DefaultFun,
		AvatarRef: DefaultAvatarRef,
	}
}

// Session はログインセッションを表す。
// IDは推測不能な不透明トークンで、クライアントにはCookieとしてのみ渡す。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ProfilePatch はプロフィール部分更新の入力を表す。
// nilのフィールドは変更しない。
type ProfilePatch struct {
	DisplayName          *string
	Email                *string
	Password             *string
	SoundEnabled         *bool
	NotificationsEnabled *bool
}

// IsEmpty は更新対象フィールドが1つもないかを返す。
func (p *ProfilePatch) IsEmpty() bool {
	return p.DisplayName == nil && p.Email == nil && p.Password == nil &&
		p.SoundEnabled == nil && p.NotificationsEnabled == nil
}
