// Package auth はidentity照合、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/tamago/internal/model"
	"github.com/hitoshi/tamago/internal/password"
	"github.com/hitoshi/tamago/internal/repository"
)

// maxReconcileAttempts は連携ログインのfind-or-link-or-create処理の
// 最大試行回数。一意制約違反（= 並行リクエストが先に照合を完了した）と
// 一時的なストアエラーの両方をこの回数まで再試行する。
// パスワード不一致やセッション不一致は決して再試行しない。
const maxReconcileAttempts = 3

// AvatarFetcher は連携プロフィール画像の取得インターフェース。
// 取得はベストエフォートであり、失敗してもログイン処理は継続する。
type AvatarFetcher interface {
	// Fetch は指定URLから画像を取得し、データとMIMEタイプを返す。
	// 取得失敗時はnilデータを返す（エラーは返さない）。
	Fetch(ctx context.Context, pictureURL string) (data []byte, mimeType string)
}

// NameSanitizer は表示名サニタイズのインターフェース。
// security.NameSanitizerServiceの部分集合として定義する。
type NameSanitizer interface {
	Sanitize(displayName string) string
}

// MetricsRecorder は認証イベントのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordRegistration()
	RecordLogin(method string)
	RecordLoginFailure(method string)
	RecordReconcileRetry()
	RecordVerifyLatency(duration time.Duration)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// SessionMaxAge はセッション有効期間（秒）。有効期限は発行時に固定され、
	// リクエストごとの延長（スライディング）は行わない。
	SessionMaxAge int

	// SessionSecret はセッションIDの保存時ハッシュ化に使用する鍵。
	// DBにはHMAC-SHA256(secret, sessionID)を保存し、Cookie値そのものは
	// 保存しない。DB漏えい時にセッションを乗っ取られないための措置。
	SessionSecret string
}

// Service はidentity照合とセッション管理のビジネスロジックを提供する。
// ローカル認証・連携認証のどちらの経路でも、1人の利用者が
// ちょうど1つのアカウントとちょうど1匹のペットに解決されることを保証する。
type Service struct {
	verifier    TokenVerifier
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	hasher      password.Hasher
	sanitizer   NameSanitizer
	avatars     AvatarFetcher
	metrics     MetricsRecorder
	config      ServiceConfig
}

// NewService はServiceを生成する。
// avatarsとmetricsはnil可（無効化される）。
func NewService(
	verifier TokenVerifier,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	hasher password.Hasher,
	sanitizer NameSanitizer,
	avatars AvatarFetcher,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		verifier:    verifier,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		sanitizer:   sanitizer,
		avatars:     avatars,
		metrics:     metrics,
		config:      config,
	}
}

// NormalizeEmail はメールアドレスを正規化する（前後空白除去+小文字化）。
// アカウントの一意性はこの正規化後の値で判定する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はローカルアカウントを新規登録し、初期状態のペットを作成する。
// アカウントとペットの作成は同一トランザクションで行われる。
// セッションは発行しない（登録後に明示的なログインが必要）。
func (s *Service) Register(ctx context.Context, email, displayName, plaintext string) (*model.Account, error) {
	normalized := NormalizeEmail(email)

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	account := &model.Account{
		ID:                   uuid.New().String(),
		Email:                normalized,
		DisplayName:          s.sanitizeName(displayName),
		PasswordHash:         &hash,
		SoundEnabled:         true,
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.accountRepo.CreateWithPet(ctx, account, model.NewDefaultPet(account.ID)); err != nil {
		if repository.IsUniqueViolation(err) {
			// 同時登録の競合もここに到達する。一意制約を正とし、
			// 片方だけが成功する。
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordRegistration()
	}
	slog.Info("account registered",
		slog.String("account_id", account.ID),
	)

	return account, nil
}

// LoginLocal はメールアドレスとパスワードでログインし、セッションを発行する。
// アカウントが存在しない場合はAccountNotFound（暗黙の作成は行わない）、
// パスワード不一致の場合はInvalidCredentialsを返す。
// どの検証段階で失敗したかによる情報漏えいを避けるため、
// パスワード未設定（連携のみ）のアカウントへのローカルログインも
// InvalidCredentialsとして扱う。
func (s *Service) LoginLocal(ctx context.Context, email, plaintext string) (*model.Account, *model.Session, error) {
	account, err := s.accountRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		s.recordLoginFailure("local")
		return nil, nil, model.NewAccountNotFoundError()
	}

	if !account.IsLocal() {
		s.recordLoginFailure("local")
		return nil, nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(plaintext, *account.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.recordLoginFailure("local")
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordLogin("local")
	}
	slog.Info("local login succeeded",
		slog.String("account_id", account.ID),
	)

	return account, session, nil
}

// LoginFederated はGoogleのIDトークンでログインし、セッションを発行する。
// 照合ポリシー（find-or-link-or-create）:
//  1. federated_subjectで既存アカウントを検索
//  2. 見つからなければ検証済みメールアドレスで検索し、
//     既存アカウントにsubjectを紐付ける（同一人物の重複識別を防ぐ）
//  3. それでも見つからなければパスワード無しの新規アカウントと
//     初期状態のペットを作成する
//
// 並行する同一identityのリクエストとの競合はストアの一意制約を正として
// 検出し、「他のリクエストが先に照合した」ものとして再読込する。
// 再試行上限を超えた場合のみReconciliationConflictを返す。
func (s *Service) LoginFederated(ctx context.Context, rawToken string) (*model.Account, *model.Session, error) {
	verifyStart := time.Now()
	identity, err := s.verifier.Verify(ctx, rawToken)
	if s.metrics != nil {
		s.metrics.RecordVerifyLatency(time.Since(verifyStart))
	}
	if err != nil {
		s.recordLoginFailure("federated")
		slog.Warn("federated token verification failed",
			slog.String("error", err.Error()),
		)
		return nil, nil, model.NewVerificationError()
	}

	account, created, err := s.reconcile(ctx, identity)
	if err != nil {
		return nil, nil, err
	}

	// プロフィール画像の取得はベストエフォート。失敗してもログインは成功する。
	if created && s.avatars != nil && identity.PictureURL != "" {
		if data, mime := s.avatars.Fetch(ctx, identity.PictureURL); data != nil {
			if err := s.accountRepo.UpdateAvatar(ctx, account.ID, data, mime); err != nil {
				slog.Warn("failed to store federated avatar",
					slog.String("account_id", account.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordLogin("federated")
	}
	slog.Info("federated login succeeded",
		slog.String("account_id", account.ID),
		slog.Bool("created", created),
	)

	return account, session, nil
}

// reconcile はfind-or-link-or-createを実行する。
// 戻り値のcreatedは新規アカウントを作成した場合にtrue。
func (s *Service) reconcile(ctx context.Context, identity *FederatedIdentity) (*model.Account, bool, error) {
	var lastErr error

	for attempt := 1; attempt <= maxReconcileAttempts; attempt++ {
		if attempt > 1 && s.metrics != nil {
			s.metrics.RecordReconcileRetry()
		}

		// 1. subjectで検索
		account, err := s.accountRepo.FindByFederatedSubject(ctx, identity.Subject)
		if err != nil {
			lastErr = err
			continue
		}
		if account != nil {
			return account, false, nil
		}

		// 2. メールアドレスで既存アカウントを検索し、subjectを紐付ける
		if identity.Email != "" {
			byEmail, err := s.accountRepo.FindByEmail(ctx, NormalizeEmail(identity.Email))
			if err != nil {
				lastErr = err
				continue
			}
			if byEmail != nil {
				if err := s.accountRepo.LinkFederatedSubject(ctx, byEmail.ID, identity.Subject); err != nil {
					// 別subjectへ紐付け済みのアカウントは再試行しても
					// 解消しないため、即座に競合として返す。
					if errors.Is(err, repository.ErrSubjectConflict) {
						slog.Warn("federated email belongs to a different subject",
							slog.String("account_id", byEmail.ID),
						)
						return nil, false, model.NewReconciliationConflictError()
					}
					// 一時的なストア障害は再試行する。
					lastErr = err
					continue
				}
				subject := identity.Subject
				byEmail.FederatedSubject = &subject
				slog.Info("federated subject linked to existing account",
					slog.String("account_id", byEmail.ID),
				)
				return byEmail, false, nil
			}
		}

		// 3. 新規作成（パスワード無し、ペットは初期状態）
		// メールアドレスの無いトークンでアカウントは作成しない。
		// 空メールで作成すると一意制約に衝突し続けるため検証エラーとする。
		if identity.Email == "" {
			slog.Warn("federated token carries no email claim",
				slog.String("subject", identity.Subject),
			)
			return nil, false, model.NewVerificationError()
		}
		now := time.Now()
		subject := identity.Subject
		newAccount := &model.Account{
			ID:                   uuid.New().String(),
			Email:                NormalizeEmail(identity.Email),
			DisplayName:          s.sanitizeName(identity.Name),
			FederatedSubject:     &subject,
			SoundEnabled:         true,
			NotificationsEnabled: true,
			CreatedAt:            now,
			UpdatedAt:            now,
		}

		err = s.accountRepo.CreateWithPet(ctx, newAccount, model.NewDefaultPet(newAccount.ID))
		if err == nil {
			return newAccount, true, nil
		}
		if repository.IsUniqueViolation(err) {
			// 他のリクエストが先に同じidentityを作成した。
			// エラーにはせず再読込で既存アカウントに解決する。
			lastErr = err
			continue
		}
		return nil, false, fmt.Errorf("failed to create federated account: %w", err)
	}

	slog.Error("federated reconciliation exceeded retry budget",
		slog.String("subject", identity.Subject),
		slog.String("last_error", errString(lastErr)),
	)

	// 一意制約違反で使い切った場合のみ競合（409・再試行可能）。
	// ストア障害で使い切った場合はコラボレーター障害として上位に伝える。
	if repository.IsUniqueViolation(lastErr) {
		return nil, false, model.NewReconciliationConflictError()
	}
	return nil, false, fmt.Errorf("federated reconciliation failed: %w", lastErr)
}

// Logout はセッションを破棄する。
// 既に破棄済み・存在しないセッションのログアウトも成功として扱う（冪等）。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, s.hashSessionID(sessionID)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("session terminated")
	return nil
}

// ResolveSession はセッションIDからアカウントIDを解決する。
// 不在・期限切れ・破棄済みはいずれも空文字列として同一に扱い、
// 呼び出し側がこれらを区別できないようにする。
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", nil
	}

	session, err := s.sessionRepo.FindByID(ctx, s.hashSessionID(sessionID))
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return "", nil
	}

	return session.AccountID, nil
}

// CurrentAccount はセッションIDから現在のアカウントを取得する。
// 無効なセッションの場合はnilを返す。
func (s *Service) CurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	accountID, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, nil
	}

	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// createSession はセッションを作成し永続化する。
// 有効期限は発行時に固定される。戻り値のIDはCookieに載せる生の値であり、
// DBにはそのHMACのみが保存される。
func (s *Service) createSession(ctx context.Context, accountID string) (*model.Session, error) {
	rawID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(s.config.SessionMaxAge) * time.Second)

	stored := &model.Session{
		ID:        s.hashSessionID(rawID),
		AccountID: accountID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &model.Session{
		ID:        rawID,
		AccountID: accountID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// hashSessionID はセッションIDの保存用HMACを計算する。
func (s *Service) hashSessionID(rawID string) string {
	mac := hmac.New(sha256.New, []byte(s.config.SessionSecret))
	mac.Write([]byte(rawID))
	return hex.EncodeToString(mac.Sum(nil))
}

// sanitizeName は表示名をサニタイズする。サニタイズ後に空になった場合は
// デフォルト名を使用する。
func (s *Service) sanitizeName(displayName string) string {
	name := strings.TrimSpace(displayName)
	if s.sanitizer != nil {
		name = s.sanitizer.Sanitize(name)
	}
	if name == "" {
		return "Default User"
	}
	return name
}

func (s *Service) recordLoginFailure(method string) {
	if s.metrics != nil {
		s.metrics.RecordLoginFailure(method)
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
