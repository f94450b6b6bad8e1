package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tamago/internal/model"
)

// PostgresPetRepo はPostgreSQLを使用したペットリポジトリ。
type PostgresPetRepo struct {
	db *sql.DB
}

// NewPostgresPetRepo はPostgresPetRepoを生成する。
func NewPostgresPetRepo(db *sql.DB) *PostgresPetRepo {
	return &PostgresPetRepo{db: db}
}

// FindByOwnerID は指定アカウントのペットを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresPetRepo) FindByOwnerID(ctx context.Context, ownerID string) (*model.Pet, error) {
	pet := &model.Pet{}
	err := r.db.QueryRowContext(ctx,
		`SELECT owner_id, hunger, fun, avatar_ref, updated_at
		 FROM pets WHERE owner_id = $1`,
		ownerID,
	).Scan(&pet.OwnerID, &pet.Hunger, &pet.Fun, &pet.AvatarRef, &pet.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pet: %w", err)
	}

	return pet, nil
}

// ApplyDelta はhunger/funに差分を適用し、更新後のペットを返す。
// クランプはUPDATE文内のLEAST/GREATESTで行うため、読み取りと書き込みの
// 間に他のリクエストが値を変更しても、古い値に対するクランプは発生しない。
// ペットが存在しない場合はnilを返す。
func (r *PostgresPetRepo) ApplyDelta(ctx context.Context, ownerID string, hungerDelta, funDelta int) (*model.Pet, error) {
	pet := &model.Pet{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE pets
		 SET hunger = LEAST(100, GREATEST(0, hunger + $2)),
		     fun = LEAST(100, GREATEST(0, fun + $3)),
		     updated_at = now()
		 WHERE owner_id = $1
		 RETURNING owner_id, hunger, fun, avatar_ref, updated_at`,
		ownerID, hungerDelta, funDelta,
	).Scan(&pet.OwnerID, &pet.Hunger, &pet.Fun, &pet.AvatarRef, &pet.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply pet delta: %w", err)
	}

	return pet, nil
}

// SetAvatar はペットのアバター識別子を更新し、更新後のペットを返す。
// ペットが存在しない場合はnilを返す。
func (r *PostgresPetRepo) SetAvatar(ctx context.Context, ownerID, avatarRef string) (*model.Pet, error) {
	pet := &model.Pet{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE pets
		 SET avatar_ref = $2, updated_at = now()
		 WHERE owner_id = $1
		 RETURNING owner_id, hunger, fun, avatar_ref, updated_at`,
		ownerID, avatarRef,
	).Scan(&pet.OwnerID, &pet.Hunger, &pet.Fun, &pet.AvatarRef, &pet.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set pet avatar: %w", err)
	}

	return pet, nil
}

// compile-time interface check
var _ PetRepository = (*PostgresPetRepo)(nil)
