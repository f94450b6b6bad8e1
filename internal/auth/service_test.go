package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/tamago/internal/model"
	"github.com/hitoshi/tamago/internal/repository"
	"github.com/lib/pq"
)

// --- モック ---

type mockAccountRepo struct {
	findByIDFn               func(ctx context.Context, id string) (*model.Account, error)
	findByEmailFn            func(ctx context.Context, email string) (*model.Account, error)
	findByFederatedSubjectFn func(ctx context.Context, subject string) (*model.Account, error)
	createWithPetFn          func(ctx context.Context, account *model.Account, pet *model.Pet) error
	linkFederatedSubjectFn   func(ctx context.Context, accountID, subject string) error
	updateAvatarFn           func(ctx context.Context, accountID string, data []byte, mimeType string) error
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockAccountRepo) FindByFederatedSubject(ctx context.Context, subject string) (*model.Account, error) {
	if m.findByFederatedSubjectFn != nil {
		return m.findByFederatedSubjectFn(ctx, subject)
	}
	return nil, nil
}
func (m *mockAccountRepo) CreateWithPet(ctx context.Context, account *model.Account, pet *model.Pet) error {
	if m.createWithPetFn != nil {
		return m.createWithPetFn(ctx, account, pet)
	}
	return nil
}
func (m *mockAccountRepo) LinkFederatedSubject(ctx context.Context, accountID, subject string) error {
	if m.linkFederatedSubjectFn != nil {
		return m.linkFederatedSubjectFn(ctx, accountID, subject)
	}
	return nil
}
func (m *mockAccountRepo) UpdateProfile(ctx context.Context, accountID string, update *repository.ProfileUpdate) (bool, error) {
	return false, nil
}
func (m *mockAccountRepo) UpdateAvatar(ctx context.Context, accountID string, data []byte, mimeType string) error {
	if m.updateAvatarFn != nil {
		return m.updateAvatarFn(ctx, accountID, data, mimeType)
	}
	return nil
}

// memorySessionRepo はセッションの保存・検索・削除をインメモリで再現する。
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: map[string]*model.Session{}}
}

func (m *memorySessionRepo) Create(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}
func (m *memorySessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return s, nil
}
func (m *memorySessionRepo) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
func (m *memorySessionRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	return nil
}
func (m *memorySessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type mockVerifier struct {
	verifyFn func(ctx context.Context, rawToken string) (*FederatedIdentity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
	return m.verifyFn(ctx, rawToken)
}

type mockHasher struct {
	hashFn   func(plaintext string) (string, error)
	verifyFn func(plaintext, encoded string) (bool, error)
}

func (m *mockHasher) Hash(plaintext string) (string, error) {
	if m.hashFn != nil {
		return m.hashFn(plaintext)
	}
	return "hashed:" + plaintext, nil
}
func (m *mockHasher) Verify(plaintext, encoded string) (bool, error) {
	if m.verifyFn != nil {
		return m.verifyFn(plaintext, encoded)
	}
	return encoded == "hashed:"+plaintext, nil
}

type mockAvatarFetcher struct {
	fetchFn func(ctx context.Context, pictureURL string) ([]byte, string)
}

func (m *mockAvatarFetcher) Fetch(ctx context.Context, pictureURL string) ([]byte, string) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, pictureURL)
	}
	return nil, ""
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505", Constraint: "accounts_email_unique"}
}

func newTestService(accountRepo repository.AccountRepository, sessionRepo repository.SessionRepository, verifier TokenVerifier) *Service {
	return NewService(
		verifier,
		accountRepo,
		sessionRepo,
		&mockHasher{},
		nil,
		nil,
		nil,
		ServiceConfig{SessionMaxAge: 3600, SessionSecret: "test-session-secret"},
	)
}

// --- テスト ---

// TestService_Register は登録でアカウントとペットが同時作成され、
// セッションが発行されないことを検証する。
func TestService_Register(t *testing.T) {
	var createdPet *model.Pet
	accountRepo := &mockAccountRepo{
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			createdPet = pet
			if pet.OwnerID != account.ID {
				t.Errorf("pet owner %q does not match account %q", pet.OwnerID, account.ID)
			}
			return nil
		},
	}
	sessionRepo := newMemorySessionRepo()

	service := newTestService(accountRepo, sessionRepo, nil)
	account, err := service.Register(context.Background(), "  Taro@Example.COM ", "Taro", "correct horse battery")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if account.Email != "taro@example.com" {
		t.Errorf("email not normalized: %q", account.Email)
	}
	if account.PasswordHash == nil || *account.PasswordHash == "" {
		t.Error("password hash not set")
	}
	if createdPet == nil {
		t.Fatal("pet not created")
	}
	if createdPet.Hunger != model.DefaultHunger || createdPet.Fun != model.DefaultFun {
		t.Errorf("pet not at default state: hunger=%d fun=%d", createdPet.Hunger, createdPet.Fun)
	}
	if len(sessionRepo.sessions) != 0 {
		t.Error("Register should not create a session")
	}
}

// TestService_Register_DuplicateEmail は重複メールアドレスでの登録が
// DUPLICATE_EMAILになることを検証する。
func TestService_Register_DuplicateEmail(t *testing.T) {
	accountRepo := &mockAccountRepo{
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			return uniqueViolation()
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), nil)
	_, err := service.Register(context.Background(), "taro@example.com", "Taro", "password123")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateEmail {
		t.Errorf("expected DUPLICATE_EMAIL, got %v", err)
	}
}

// TestService_LoginLocal はローカルログインの成功でセッションが発行され、
// そのセッションが同じアカウントに解決されることを検証する。
func TestService_LoginLocal(t *testing.T) {
	hash := "hashed:password123"
	accountRepo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			if email != "taro@example.com" {
				t.Errorf("email not normalized before lookup: %q", email)
			}
			return &model.Account{ID: "acc-1", Email: email, PasswordHash: &hash}, nil
		},
	}
	sessionRepo := newMemorySessionRepo()

	service := newTestService(accountRepo, sessionRepo, nil)
	account, session, err := service.LoginLocal(context.Background(), " TARO@example.com ", "password123")
	if err != nil {
		t.Fatalf("LoginLocal failed: %v", err)
	}
	if account.ID != "acc-1" {
		t.Errorf("account ID = %q", account.ID)
	}
	if session.ID == "" {
		t.Fatal("session ID is empty")
	}

	// Cookie用の生IDはDBに保存されず、HMACのみが保存される
	if _, ok := sessionRepo.sessions[session.ID]; ok {
		t.Error("raw session ID must not be stored")
	}

	accountID, err := service.ResolveSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if accountID != "acc-1" {
		t.Errorf("resolved account = %q", accountID)
	}
}

// TestService_LoginLocal_AccountNotFound は未登録メールアドレスでの
// ログインがACCOUNT_NOT_FOUNDになる（暗黙作成しない）ことを検証する。
func TestService_LoginLocal_AccountNotFound(t *testing.T) {
	created := false
	accountRepo := &mockAccountRepo{
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			created = true
			return nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), nil)
	_, _, err := service.LoginLocal(context.Background(), "nobody@example.com", "password123")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAccountNotFound {
		t.Errorf("expected ACCOUNT_NOT_FOUND, got %v", err)
	}
	if created {
		t.Error("login must not implicitly create an account")
	}
}

// TestService_LoginLocal_WrongPassword はパスワード不一致が
// INVALID_CREDENTIALSになることを検証する。
func TestService_LoginLocal_WrongPassword(t *testing.T) {
	hash := "hashed:password123"
	accountRepo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			return &model.Account{ID: "acc-1", Email: email, PasswordHash: &hash}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), nil)
	_, _, err := service.LoginLocal(context.Background(), "taro@example.com", "wrong-password")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", err)
	}
}

// TestService_LoginLocal_FederatedOnlyAccount はパスワード未設定の連携専用
// アカウントへのローカルログインがINVALID_CREDENTIALSになることを検証する。
func TestService_LoginLocal_FederatedOnlyAccount(t *testing.T) {
	subject := "google-sub-1"
	accountRepo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			return &model.Account{ID: "acc-1", Email: email, FederatedSubject: &subject}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), nil)
	_, _, err := service.LoginLocal(context.Background(), "taro@example.com", "password123")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", err)
	}
}

// TestService_LoginFederated_ExistingSubject は既知のsubjectが既存アカウント
// に解決され、ペットが再作成されないことを検証する。
func TestService_LoginFederated_ExistingSubject(t *testing.T) {
	subject := "google-sub-1"
	created := false
	accountRepo := &mockAccountRepo{
		findByFederatedSubjectFn: func(ctx context.Context, sub string) (*model.Account, error) {
			if sub == subject {
				return &model.Account{ID: "acc-1", Email: "hanako@example.com", FederatedSubject: &subject}, nil
			}
			return nil, nil
		},
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			created = true
			return nil
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: subject, Email: "hanako@example.com", Name: "Hanako"}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), verifier)
	account, session, err := service.LoginFederated(context.Background(), "token")
	if err != nil {
		t.Fatalf("LoginFederated failed: %v", err)
	}
	if account.ID != "acc-1" {
		t.Errorf("account ID = %q", account.ID)
	}
	if session == nil || session.ID == "" {
		t.Fatal("session not issued")
	}
	if created {
		t.Error("existing identity must not create a new account")
	}
}

// TestService_LoginFederated_LinksByEmail は検証済みメールアドレスが一致する
// 既存ローカルアカウントへsubjectが紐付けられ、新規作成されないことを検証する。
func TestService_LoginFederated_LinksByEmail(t *testing.T) {
	hash := "hashed:password123"
	linked := ""
	created := false
	accountRepo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			if email == "taro@example.com" {
				return &model.Account{ID: "acc-1", Email: email, PasswordHash: &hash}, nil
			}
			return nil, nil
		},
		linkFederatedSubjectFn: func(ctx context.Context, accountID, subject string) error {
			linked = accountID + "/" + subject
			return nil
		},
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			created = true
			return nil
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: "google-sub-1", Email: "Taro@Example.com", Name: "Taro"}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), verifier)
	account, _, err := service.LoginFederated(context.Background(), "token")
	if err != nil {
		t.Fatalf("LoginFederated failed: %v", err)
	}
	if account.ID != "acc-1" {
		t.Errorf("account ID = %q", account.ID)
	}
	if linked != "acc-1/google-sub-1" {
		t.Errorf("subject not linked: %q", linked)
	}
	if created {
		t.Error("link path must not create a second account and pet")
	}
}

// TestService_LoginFederated_EmailLinkedToOtherSubject は一致するメールアドレスの
// アカウントが既に別のsubjectに紐付いている場合、再試行せずに
// RECONCILIATION_CONFLICTになることを検証する。
func TestService_LoginFederated_EmailLinkedToOtherSubject(t *testing.T) {
	otherSubject := "google-sub-other"
	linkAttempts := 0
	created := false
	accountRepo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			return &model.Account{ID: "acc-1", Email: email, FederatedSubject: &otherSubject}, nil
		},
		linkFederatedSubjectFn: func(ctx context.Context, accountID, subject string) error {
			linkAttempts++
			return fmt.Errorf("link subject for account %s: %w", accountID, repository.ErrSubjectConflict)
		},
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			created = true
			return nil
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: "google-sub-6", Email: "taro@example.com", Name: "Taro"}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), verifier)
	_, _, err := service.LoginFederated(context.Background(), "token")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeReconciliationConflict {
		t.Errorf("expected RECONCILIATION_CONFLICT, got %v", err)
	}
	if linkAttempts != 1 {
		t.Errorf("link attempts = %d, want 1 (deterministic conflict must not be retried)", linkAttempts)
	}
	if created {
		t.Error("conflicting identity must not create a new account")
	}
}

// TestService_LoginFederated_NoEmailClaim はemailクレームを持たないトークンで
// アカウントが作成されず、検証エラーになることを検証する。
func TestService_LoginFederated_NoEmailClaim(t *testing.T) {
	created := false
	accountRepo := &mockAccountRepo{
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			created = true
			return nil
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: "google-sub-5", Email: "", Name: "Nanashi"}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), verifier)
	_, _, err := service.LoginFederated(context.Background(), "token")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeVerificationFailed {
		t.Errorf("expected VERIFICATION_ERROR, got %v", err)
	}
	if created {
		t.Error("email-less identity must not create an account")
	}
}

// TestService_LoginFederated_CreatesAccount は未知のidentityでアカウントと
// ペットが作成されることを検証する。
func TestService_LoginFederated_CreatesAccount(t *testing.T) {
	var createdAccount *model.Account
	accountRepo := &mockAccountRepo{
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			createdAccount = account
			return nil
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: "google-sub-2", Email: "new@example.com", Name: "Shinki"}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), verifier)
	account, _, err := service.LoginFederated(context.Background(), "token")
	if err != nil {
		t.Fatalf("LoginFederated failed: %v", err)
	}
	if createdAccount == nil {
		t.Fatal("account not created")
	}
	if account.PasswordHash != nil {
		t.Error("federated account must not have a password hash")
	}
	if account.FederatedSubject == nil || *account.FederatedSubject != "google-sub-2" {
		t.Error("federated subject not set")
	}
}

// TestService_LoginFederated_RetryOnConflict は同時作成の一意制約違反が
// 再読込によって既存アカウントに解決されることを検証する。
func TestService_LoginFederated_RetryOnConflict(t *testing.T) {
	subject := "google-sub-3"
	attempts := 0
	accountRepo := &mockAccountRepo{
		findByFederatedSubjectFn: func(ctx context.Context, sub string) (*model.Account, error) {
			// 2回目の検索では並行リクエストが作成したアカウントが見える
			if attempts > 0 {
				return &model.Account{ID: "acc-winner", Email: "race@example.com", FederatedSubject: &subject}, nil
			}
			return nil, nil
		},
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			attempts++
			return uniqueViolation()
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: subject, Email: "race@example.com"}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), verifier)
	account, _, err := service.LoginFederated(context.Background(), "token")
	if err != nil {
		t.Fatalf("LoginFederated failed: %v", err)
	}
	if account.ID != "acc-winner" {
		t.Errorf("expected resolution to the concurrently created account, got %q", account.ID)
	}
	if attempts != 1 {
		t.Errorf("create attempts = %d", attempts)
	}
}

// TestService_LoginFederated_ConflictExhausted は再試行上限を超えた場合に
// RECONCILIATION_CONFLICTになることを検証する。
func TestService_LoginFederated_ConflictExhausted(t *testing.T) {
	accountRepo := &mockAccountRepo{
		createWithPetFn: func(ctx context.Context, account *model.Account, pet *model.Pet) error {
			return uniqueViolation()
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: "google-sub-4", Email: "stuck@example.com"}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), verifier)
	_, _, err := service.LoginFederated(context.Background(), "token")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeReconciliationConflict {
		t.Errorf("expected RECONCILIATION_CONFLICT, got %v", err)
	}
}

// TestService_LoginFederated_StoreFailureExhausted はストア障害で再試行を
// 使い切った場合に競合ではなくコラボレーター障害として返ることを検証する。
func TestService_LoginFederated_StoreFailureExhausted(t *testing.T) {
	storeDown := errors.New("connection refused")
	accountRepo := &mockAccountRepo{
		findByFederatedSubjectFn: func(ctx context.Context, subject string) (*model.Account, error) {
			return nil, storeDown
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: "google-sub-5", Email: "down@example.com"}, nil
		},
	}

	service := newTestService(accountRepo, newMemorySessionRepo(), verifier)
	_, _, err := service.LoginFederated(context.Background(), "token")

	if !errors.Is(err, storeDown) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure must not map to an API error, got %v", apiErr.Code)
	}
}

// TestService_LoginFederated_InvalidToken はトークン検証失敗が
// VERIFICATION_ERRORになることを検証する。
func TestService_LoginFederated_InvalidToken(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return nil, ErrTokenExpired
		},
	}

	service := newTestService(&mockAccountRepo{}, newMemorySessionRepo(), verifier)
	_, _, err := service.LoginFederated(context.Background(), "expired-token")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeVerificationFailed {
		t.Errorf("expected VERIFICATION_ERROR, got %v", err)
	}
}

// TestService_LoginFederated_AvatarFailureIgnored はプロフィール画像の
// 取得失敗がログインを妨げないことを検証する。
func TestService_LoginFederated_AvatarFailureIgnored(t *testing.T) {
	accountRepo := &mockAccountRepo{
		updateAvatarFn: func(ctx context.Context, accountID string, data []byte, mimeType string) error {
			t.Error("UpdateAvatar must not be called when fetch fails")
			return nil
		},
	}
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
			return &FederatedIdentity{Subject: "sub", Email: "a@example.com", PictureURL: "https://lh3.googleusercontent.com/a/x"}, nil
		},
	}

	service := NewService(
		verifier,
		accountRepo,
		newMemorySessionRepo(),
		&mockHasher{},
		nil,
		&mockAvatarFetcher{fetchFn: func(ctx context.Context, url string) ([]byte, string) { return nil, "" }},
		nil,
		ServiceConfig{SessionMaxAge: 3600, SessionSecret: "test-session-secret"},
	)

	if _, _, err := service.LoginFederated(context.Background(), "token"); err != nil {
		t.Fatalf("LoginFederated failed: %v", err)
	}
}

// TestService_Logout はログアウト後にセッションが解決されなくなり、
// 再ログアウトも成功する（冪等）ことを検証する。
func TestService_Logout(t *testing.T) {
	hash := "hashed:password123"
	accountRepo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			return &model.Account{ID: "acc-1", Email: email, PasswordHash: &hash}, nil
		},
	}
	sessionRepo := newMemorySessionRepo()
	service := newTestService(accountRepo, sessionRepo, nil)

	_, session, err := service.LoginLocal(context.Background(), "taro@example.com", "password123")
	if err != nil {
		t.Fatalf("LoginLocal failed: %v", err)
	}

	if err := service.Logout(context.Background(), session.ID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	accountID, err := service.ResolveSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if accountID != "" {
		t.Error("terminated session must not resolve")
	}

	// 冪等: 2回目も成功、未知のセッションIDも成功
	if err := service.Logout(context.Background(), session.ID); err != nil {
		t.Errorf("repeated Logout failed: %v", err)
	}
	if err := service.Logout(context.Background(), "unknown-session"); err != nil {
		t.Errorf("Logout of unknown session failed: %v", err)
	}
}

// TestService_ResolveSession_Expired は期限切れセッションが解決されない
// ことを検証する。
func TestService_ResolveSession_Expired(t *testing.T) {
	sessionRepo := newMemorySessionRepo()
	service := newTestService(&mockAccountRepo{}, sessionRepo, nil)

	session, err := service.createSession(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("createSession failed: %v", err)
	}
	sessionRepo.sessions[service.hashSessionID(session.ID)].ExpiresAt = time.Now().Add(-time.Minute)

	accountID, err := service.ResolveSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if accountID != "" {
		t.Error("expired session must not resolve")
	}
}
