// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"time"

	"github.com/hitoshi/tamago/internal/middleware"
	"github.com/hitoshi/tamago/internal/model"
)

// minPasswordLength はローカル認証パスワードの最小文字数。
const minPasswordLength = 8

// AccountAuthService はアカウントハンドラーが必要とする認証サービスの
// インターフェース。
type AccountAuthService interface {
	Register(ctx context.Context, email, displayName, plaintext string) (*model.Account, error)
	LoginLocal(ctx context.Context, email, plaintext string) (*model.Account, *model.Session, error)
}

// ProfileService はアカウントハンドラーが必要とするプロフィールサービスの
// インターフェース。
type ProfileService interface {
	GetProfile(ctx context.Context, accountID string) (*model.Account, error)
	UpdateProfile(ctx context.Context, accountID string, patch *model.ProfilePatch) (*model.Account, error)
	GetAvatar(ctx context.Context, accountID string) (data []byte, mimeType string, err error)
}

// SessionCookieConfig はセッションCookieの設定。
type SessionCookieConfig struct {
	CookieDomain string
	CookieSecure bool
	// MaxAge はCookieの有効期間（秒）。セッション本体の有効期限と揃える。
	MaxAge int
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	authService    AccountAuthService
	profileService ProfileService
	cookieConfig   SessionCookieConfig
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(authService AccountAuthService, profileService ProfileService, cookieConfig SessionCookieConfig) *AccountHandler {
	return &AccountHandler{
		authService:    authService,
		profileService: profileService,
		cookieConfig:   cookieConfig,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileResponse struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	DisplayName          string    `json:"displayName"`
	Federated            bool      `json:"federated"`
	SoundEnabled         bool      `json:"soundEnabled"`
	NotificationsEnabled bool      `json:"notificationsEnabled"`
	CreatedAt            time.Time `json:"createdAt"`
}

type profileUpdateRequest struct {
	DisplayName          *string `json:"displayName"`
	Email                *string `json:"email"`
	Password             *string `json:"password"`
	SoundEnabled         *bool   `json:"soundEnabled"`
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
}

// Register はローカルアカウントを新規登録する。
// POST /account/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	// サービス層へ渡す前に入力を検証する
	if apiErr := validateEmail(req.Email); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if apiErr := validatePassword(req.Password); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	account, err := h.authService.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"accountId": account.ID,
	})
}

// Login はメールアドレスとパスワードでログインする。
// POST /account/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("メールアドレスとパスワードは必須です"))
		return
	}

	account, session, err := h.authService.LoginLocal(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	setSessionCookie(w, session.ID, h.cookieConfig)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"accountId":   account.ID,
		"displayName": account.DisplayName,
	})
}

// GetProfile は現在のアカウントのプロフィールを返す。
// GET /account/profile
func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	account, err := h.profileService.GetProfile(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeProfileResponse(w, account)
}

// UpdateProfile はプロフィールを部分更新する。
// PUT /account/profile
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	if req.Email != nil {
		if apiErr := validateEmail(*req.Email); apiErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
	}
	if req.Password != nil {
		if apiErr := validatePassword(*req.Password); apiErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
	}

	account, err := h.profileService.UpdateProfile(r.Context(), accountID, &model.ProfilePatch{
		DisplayName:          req.DisplayName,
		Email:                req.Email,
		Password:             req.Password,
		SoundEnabled:         req.SoundEnabled,
		NotificationsEnabled: req.NotificationsEnabled,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeProfileResponse(w, account)
}

// GetAvatar はプロフィール画像を返す。
// GET /account/avatar
func (h *AccountHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	data, mimeType, err := h.profileService.GetAvatar(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if data == nil {
		// 画像未保存。クライアントは同梱の既定画像へフォールバックする。
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "AVATAR_NOT_FOUND",
			Message:  "プロフィール画像が保存されていません。",
			Category: "user",
			Action:   "既定の画像を使用してください。",
		})
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// writeProfileResponse はプロフィールをJSONで書き込む。
func writeProfileResponse(w http.ResponseWriter, account *model.Account) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse{
		ID:                   account.ID,
		Email:                account.Email,
		DisplayName:          account.DisplayName,
		Federated:            account.IsFederated(),
		SoundEnabled:         account.SoundEnabled,
		NotificationsEnabled: account.NotificationsEnabled,
		CreatedAt:            account.CreatedAt,
	})
}

// validateEmail はメールアドレスの形式を検証する。
func validateEmail(email string) *model.APIError {
	if email == "" {
		return model.NewValidationError("メールアドレスは必須です")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewValidationError("メールアドレスの形式が不正です")
	}
	return nil
}

// validatePassword はパスワードの最小要件を検証する。
func validatePassword(password string) *model.APIError {
	if len(password) < minPasswordLength {
		return model.NewValidationError("パスワードは8文字以上にしてください")
	}
	return nil
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
func setSessionCookie(w http.ResponseWriter, sessionID string, config SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieをクリアする。
func clearSessionCookie(w http.ResponseWriter, config SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
