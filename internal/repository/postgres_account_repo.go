package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/tamago/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, email, display_name, password_hash, federated_subject,
	 sound_enabled, notifications_enabled, avatar_data, avatar_mime, created_at, updated_at`

// scanAccount は1行分のアカウントをスキャンする。
func scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	var avatarMime sql.NullString
	err := row.Scan(
		&account.ID, &account.Email, &account.DisplayName,
		&account.PasswordHash, &account.FederatedSubject,
		&account.SoundEnabled, &account.NotificationsEnabled,
		&account.AvatarData, &avatarMime,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.AvatarMime = avatarMime.String
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// FindByEmail は正規化済みメールアドレスでアカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		email,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// FindByFederatedSubject は外部IdPのsubject IDでアカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByFederatedSubject(ctx context.Context, subject string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE federated_subject = $1`,
		subject,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by federated subject: %w", err)
	}
	return account, nil
}

// CreateWithPet はアカウントとペットを同一トランザクションで作成する。
// ペット作成が失敗した場合はアカウント作成もロールバックされ、
// 片方だけが作成された状態は残らない。
// 一意制約違反はラップして返すため、呼び出し側でIsUniqueViolationが使用できる。
func (r *PostgresAccountRepo) CreateWithPet(ctx context.Context, account *model.Account, pet *model.Pet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, email, display_name, password_hash, federated_subject,
		  sound_enabled, notifications_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID, account.Email, account.DisplayName,
		account.PasswordHash, account.FederatedSubject,
		account.SoundEnabled, account.NotificationsEnabled,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pets (owner_id, hunger, fun, avatar_ref)
		 VALUES ($1, $2, $3, $4)`,
		pet.OwnerID, pet.Hunger, pet.Fun, pet.AvatarRef,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LinkFederatedSubject は既存アカウントにfederated_subjectを紐付ける。
// 既に同じsubjectが紐付いている場合は何も変更せず成功する（冪等）。
func (r *PostgresAccountRepo) LinkFederatedSubject(ctx context.Context, accountID, subject string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET federated_subject = $2, updated_at = now()
		 WHERE id = $1
		   AND (federated_subject IS NULL OR federated_subject = $2)`,
		accountID, subject,
	)
	if err != nil {
		return fmt.Errorf("failed to link federated subject: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 同一subjectの再紐付けはWHERE句が許容するため、0件は
		// 別subjectへ紐付け済み（またはアカウント消失）を意味する。
		return fmt.Errorf("link subject for account %s: %w", accountID, ErrSubjectConflict)
	}
	return nil
}

// UpdateProfile は指定フィールドのみを更新する（部分更新）。
// SET句はnilでないフィールドからのみ構築する。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, accountID string, update *ProfileUpdate) (bool, error) {
	if update.IsEmpty() {
		return true, nil
	}

	var sets []string
	var args []interface{}
	args = append(args, accountID)

	addSet := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if update.DisplayName != nil {
		addSet("display_name", *update.DisplayName)
	}
	if update.Email != nil {
		addSet("email", *update.Email)
	}
	if update.PasswordHash != nil {
		addSet("password_hash", *update.PasswordHash)
	}
	if update.SoundEnabled != nil {
		addSet("sound_enabled", *update.SoundEnabled)
	}
	if update.NotificationsEnabled != nil {
		addSet("notifications_enabled", *update.NotificationsEnabled)
	}
	sets = append(sets, "updated_at = now()")

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateAvatar は連携プロフィール画像のキャッシュを更新する。
func (r *PostgresAccountRepo) UpdateAvatar(ctx context.Context, accountID string, data []byte, mime string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET avatar_data = $2, avatar_mime = $3, updated_at = now()
		 WHERE id = $1`,
		accountID, data, mime,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
