// Package pet はペット状態の取得・更新を提供する。
package pet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/tamago/internal/model"
	"github.com/hitoshi/tamago/internal/repository"
)

// MetricsRecorder はペット更新のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordPetUpdate()
}

// Service はペット状態のビジネスロジックを提供する。
type Service struct {
	petRepo repository.PetRepository
	metrics MetricsRecorder
}

// NewService はServiceを生成する。metricsはnil可。
func NewService(petRepo repository.PetRepository, metrics MetricsRecorder) *Service {
	return &Service{petRepo: petRepo, metrics: metrics}
}

// Get はアカウントのペットを取得する。
func (s *Service) Get(ctx context.Context, ownerID string) (*model.Pet, error) {
	pet, err := s.petRepo.FindByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pet: %w", err)
	}
	if pet == nil {
		return nil, model.NewPetNotFoundError()
	}
	return pet, nil
}

// ApplyDelta はペットの状態値に変化量を適用し、更新後の状態を返す。
// 結果は常に[0,100]へ飽和し、範囲外になってもエラーにはならない。
// 両方の変化量が0の場合は状態を変更せず現在値を返す。
// 並行する更新はストア側で逐次適用されるため、失われる更新はない。
func (s *Service) ApplyDelta(ctx context.Context, ownerID string, hungerDelta, funDelta int) (*model.Pet, error) {
	if hungerDelta == 0 && funDelta == 0 {
		return s.Get(ctx, ownerID)
	}

	pet, err := s.petRepo.ApplyDelta(ctx, ownerID, hungerDelta, funDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to apply pet delta: %w", err)
	}
	if pet == nil {
		return nil, model.NewPetNotFoundError()
	}

	if s.metrics != nil {
		s.metrics.RecordPetUpdate()
	}
	slog.Debug("pet state updated",
		slog.String("owner_id", ownerID),
		slog.Int("hunger", pet.Hunger),
		slog.Int("fun", pet.Fun),
	)

	return pet, nil
}

// SetAvatar はペットの見た目参照を変更する。
func (s *Service) SetAvatar(ctx context.Context, ownerID, avatarRef string) (*model.Pet, error) {
	avatarRef = strings.TrimSpace(avatarRef)
	if avatarRef == "" {
		return nil, model.NewValidationError("avatar ref must not be empty")
	}

	pet, err := s.petRepo.SetAvatar(ctx, ownerID, avatarRef)
	if err != nil {
		return nil, fmt.Errorf("failed to set pet avatar: %w", err)
	}
	if pet == nil {
		return nil, model.NewPetNotFoundError()
	}
	return pet, nil
}
