// Package account はアカウントプロフィールの取得・更新を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tamago/internal/auth"
	"github.com/hitoshi/tamago/internal/model"
	"github.com/hitoshi/tamago/internal/password"
	"github.com/hitoshi/tamago/internal/repository"
)

// SessionRevoker はアカウントの全セッションを破棄するインターフェース。
type SessionRevoker interface {
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// Service はプロフィール管理のビジネスロジックを提供する。
type Service struct {
	accountRepo repository.AccountRepository
	hasher      password.Hasher
	sanitizer   auth.NameSanitizer
	sessions    SessionRevoker
}

// NewService はServiceを生成する。sanitizerとsessionsはnil可。
// sessionsを渡すとパスワード変更時に全セッションが破棄される。
func NewService(accountRepo repository.AccountRepository, hasher password.Hasher, sanitizer auth.NameSanitizer, sessions SessionRevoker) *Service {
	return &Service{
		accountRepo: accountRepo,
		hasher:      hasher,
		sanitizer:   sanitizer,
		sessions:    sessions,
	}
}

// GetProfile はアカウントのプロフィールを取得する。
func (s *Service) GetProfile(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}

// UpdateProfile はプロフィールを部分更新する。
// patchに含まれるフィールドのみが更新され、省略されたフィールドは
// 変更されない。空のpatchは何も更新せずに成功する。
func (s *Service) UpdateProfile(ctx context.Context, accountID string, patch *model.ProfilePatch) (*model.Account, error) {
	update := &repository.ProfileUpdate{
		SoundEnabled:         patch.SoundEnabled,
		NotificationsEnabled: patch.NotificationsEnabled,
	}

	if patch.DisplayName != nil {
		name := *patch.DisplayName
		if s.sanitizer != nil {
			name = s.sanitizer.Sanitize(name)
		}
		if name == "" {
			return nil, model.NewValidationError("display name must not be empty")
		}
		update.DisplayName = &name
	}

	if patch.Email != nil {
		normalized := auth.NormalizeEmail(*patch.Email)
		if normalized == "" {
			return nil, model.NewValidationError("email must not be empty")
		}
		update.Email = &normalized
	}

	if patch.Password != nil {
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		update.PasswordHash = &hash
	}

	if !update.IsEmpty() {
		updated, err := s.accountRepo.UpdateProfile(ctx, accountID, update)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return nil, model.NewDuplicateEmailError()
			}
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
		if !updated {
			return nil, model.NewAccountNotFoundError()
		}

		slog.Info("profile updated",
			slog.String("account_id", accountID),
		)

		// パスワード変更後は全セッションを破棄し、盗まれた可能性のある
		// 既存セッションを無効化する。失敗しても更新自体は成功扱い。
		if patch.Password != nil && s.sessions != nil {
			if err := s.sessions.DeleteByAccountID(ctx, accountID); err != nil {
				slog.Warn("failed to revoke sessions after password change",
					slog.String("account_id", accountID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return s.GetProfile(ctx, accountID)
}

// GetAvatar はアカウントのプロフィール画像を返す。
// 画像が保存されていない場合は(nil, デフォルト参照名, nil)を返し、
// 呼び出し側が既定画像へフォールバックできるようにする。
func (s *Service) GetAvatar(ctx context.Context, accountID string) (data []byte, mimeType string, err error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, "", model.NewAccountNotFoundError()
	}
	if len(account.AvatarData) == 0 {
		return nil, model.DefaultAvatarRef, nil
	}
	return account.AvatarData, account.AvatarMime, nil
}
