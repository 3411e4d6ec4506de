package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/portal/internal/metrics"
	"github.com/hitoshi/portal/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 共通
	Logger        *slog.Logger
	Metrics       metrics.MetricsCollector // nil可
	Gatherer      prometheus.Gatherer      // nilの場合/metricsを公開しない
	HealthChecker HealthChecker

	// ミドルウェア依存
	SessionRestorer   middleware.SessionRestorer
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ダッシュボード
	Aggregator AggregatorInterface

	// コンテンツ
	News      NewsServiceInterface
	Documents DocumentCatalogInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → SecurityHeaders → Session → RateLimit(General)
//
// /api配下はさらにCSRFとRequireIdentityを通す。/healthと/metricsはセッションを読まない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	dashboardHandler := NewDashboardHandler(deps.SessionRestorer, deps.Aggregator)
	contentHandler := NewContentHandler(deps.News, deps.Documents)
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	// --- セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- セッションを読むルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionRestorer))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/auth", func(r chi.Router) {
			// Google Identity Servicesからの送信はg_csrf_tokenで検証する
			r.Post("/google/credential", authHandler.Credential)
			r.Get("/google/grant", authHandler.Grant)
			r.Get("/google/callback", authHandler.Callback)
			r.Get("/session", authHandler.Session)
			r.With(csrf).Post("/logout", authHandler.Logout)
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(csrf)
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireIdentity)

				r.Get("/dashboard", dashboardHandler.GetDashboard)
				r.With(deps.RateLimiter.SyncMiddleware()).Post("/dashboard/sync", dashboardHandler.Sync)

				r.Get("/news", contentHandler.ListNews)

				r.Get("/documents", contentHandler.ListDocuments)
				r.Get("/documents/{id}", contentHandler.GetDocument)
			})
		})
	})

	return r
}
