package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tamago/internal/metrics"
	"github.com/hitoshi/tamago/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	StatusObserver    middleware.StatusObserver

	// サービス
	AuthService    AuthServiceInterface
	ProfileService ProfileService
	PetService     PetServiceInterface

	// セッションCookie
	CookieConfig SessionCookieConfig

	// メトリクス公開。nilの場合は/metricsを公開しない。
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → CSRF
//	→（保護ルートのみ）Session → RateLimit(General)
//
// 認証エンドポイント（登録・ログイン・連携）はセッション不要のため
// チェーンの外に置き、接続元IPごとのレート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusObserver))
	}
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	accountHandler := NewAccountHandler(deps.AuthService, deps.ProfileService, deps.CookieConfig)
	authHandler := NewAuthHandler(deps.AuthService, deps.CookieConfig)
	petHandler := NewPetHandler(deps.PetService)

	// --- 運用エンドポイント ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証不要のルート（接続元IPごとのレート制限） ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/account/register", accountHandler.Register)
		r.Post("/account/login", accountHandler.Login)
		r.Post("/auth/federated", authHandler.FederatedLogin)
	})

	// ログアウトは冪等のためセッション検証を通さない
	r.Post("/session/logout", authHandler.Logout)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/pet", func(r chi.Router) {
			r.Get("/", petHandler.Get)
			r.Patch("/", petHandler.Patch)
		})

		r.Route("/account", func(r chi.Router) {
			r.Get("/profile", accountHandler.GetProfile)
			r.Put("/profile", accountHandler.UpdateProfile)
			r.Get("/avatar", accountHandler.GetAvatar)
		})
	})

	return r
}
