package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tamago/internal/middleware"
	"github.com/hitoshi/tamago/internal/model"
)

// AuthServiceInterface はルーターが必要とする認証サービスの全操作。
type AuthServiceInterface interface {
	AccountAuthService
	FederatedAuthService
}

// FederatedAuthService は連携認証ハンドラーが必要とするサービスインターフェース。
type FederatedAuthService interface {
	LoginFederated(ctx context.Context, rawToken string) (*model.Account, *model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandler は連携認証とセッション管理のHTTPハンドラー。
type AuthHandler struct {
	service      FederatedAuthService
	cookieConfig SessionCookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service FederatedAuthService, cookieConfig SessionCookieConfig) *AuthHandler {
	return &AuthHandler{
		service:      service,
		cookieConfig: cookieConfig,
	}
}

type federatedLoginRequest struct {
	Token string `json:"token"`
}

// FederatedLogin はGoogleのIDトークンでログインする。
// POST /auth/federated
func (h *AuthHandler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	var req federatedLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}
	if req.Token == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("トークンは必須です"))
		return
	}

	account, session, err := h.service.LoginFederated(r.Context(), req.Token)
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

// Logout はセッションを破棄しCookieをクリアする。
// セッションCookieが無い・無効な場合でも200を返す（冪等）。
// POST /session/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	clearSessionCookie(w, h.cookieConfig)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}
