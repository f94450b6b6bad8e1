package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockResolver struct {
	resolveFn func(ctx context.Context, sessionID string) (string, error)
}

func (m *mockResolver) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	return m.resolveFn(ctx, sessionID)
}

func okHandler(t *testing.T, wantAccountID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := AccountIDFromContext(r.Context())
		if err != nil {
			t.Errorf("AccountIDFromContext failed: %v", err)
		}
		if accountID != wantAccountID {
			t.Errorf("account ID = %q, want %q", accountID, wantAccountID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

// TestSessionMiddleware は有効なセッションCookieでアカウントIDが
// コンテキストへ注入されることを検証する。
func TestSessionMiddleware(t *testing.T) {
	resolver := &mockResolver{
		resolveFn: func(ctx context.Context, sessionID string) (string, error) {
			if sessionID != "raw-session-id" {
				t.Errorf("session ID = %q", sessionID)
			}
			return "acc-1", nil
		},
	}

	handler := NewSessionMiddleware(resolver)(okHandler(t, "acc-1"))

	req := httptest.NewRequest(http.MethodGet, "/pet", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "raw-session-id"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

// TestSessionMiddleware_Unauthorized はCookie不在と無効セッションが
// 同一の401になることを検証する。
func TestSessionMiddleware_Unauthorized(t *testing.T) {
	tests := []struct {
		name     string
		cookie   *http.Cookie
		resolver *mockResolver
	}{
		{
			name:   "no cookie",
			cookie: nil,
			resolver: &mockResolver{resolveFn: func(ctx context.Context, id string) (string, error) {
				t.Error("resolver must not be called without a cookie")
				return "", nil
			}},
		},
		{
			name:   "unknown or expired session",
			cookie: &http.Cookie{Name: SessionCookieName, Value: "stale"},
			resolver: &mockResolver{resolveFn: func(ctx context.Context, id string) (string, error) {
				return "", nil
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSessionMiddleware(tt.resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not be reached")
			}))

			req := httptest.NewRequest(http.MethodGet, "/pet", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

// TestSessionMiddleware_StoreFailure はセッション解決中のストア障害が
// 認証失敗（401）ではなく500として返ることを検証する。
func TestSessionMiddleware_StoreFailure(t *testing.T) {
	resolver := &mockResolver{resolveFn: func(ctx context.Context, id string) (string, error) {
		return "", errors.New("store unavailable")
	}}

	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/pet", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "raw-session-id"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// TestAccountIDFromContext はコンテキストへの注入と取得を検証する。
func TestAccountIDFromContext(t *testing.T) {
	ctx := ContextWithAccountID(context.Background(), "acc-1")
	accountID, err := AccountIDFromContext(ctx)
	if err != nil {
		t.Fatalf("AccountIDFromContext failed: %v", err)
	}
	if accountID != "acc-1" {
		t.Errorf("account ID = %q", accountID)
	}

	if _, err := AccountIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing account ID")
	}
}
