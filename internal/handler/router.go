package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/smolhub/internal/metrics"
	"github.com/hitoshi/smolhub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HSTS              bool
	TrustProxyHeaders bool
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 運用エンドポイント
	HealthChecks   map[string]HealthCheck
	MetricsHandler http.Handler

	// サービス
	AuthService    AuthServiceInterface
	UserService    UserServiceInterface
	CatalogService CatalogServiceInterface
	StorageService StorageServiceInterface
	StorageConfig  StorageHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → (RealIP) → Auth → Logging → RateLimit(General)
//
// /health と /metrics は認証とレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	modelHandler := NewModelHandler(deps.CatalogService)
	storageHandler := NewStorageHandler(deps.StorageService, deps.StorageConfig)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecks, 5*time.Second))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- API ---
	// ミドルウェアスタック: Auth → Logging → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 認証（サインアップとサインインはIPごとのレート制限を追加）
		r.Route("/auth/v1", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/signup", authHandler.SignUp)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/token", authHandler.Token)
			r.Post("/verify", authHandler.Verify)
			r.With(middleware.RequireAuth).Get("/user", authHandler.User)
			r.With(middleware.RequireAuth).Post("/logout", authHandler.Logout)
		})

		// 行ストア
		r.Route("/rest/v1", func(r chi.Router) {
			r.Get("/profiles/{id}", userHandler.GetProfile)
			r.Get("/user_roles/{user_id}", userHandler.GetRole)
			r.Post("/user_roles", userHandler.CreateRole)

			r.Get("/models", modelHandler.ListModels)
			r.Post("/models", modelHandler.CreateModel)
			r.Get("/models/{unique_id}", modelHandler.GetModel)
		})

		// Blobストア
		r.Route("/storage/v1", func(r chi.Router) {
			r.Get("/bucket", storageHandler.ListBuckets)
			r.Get("/object/public/{bucket}/*", storageHandler.Download)
			r.Post("/object/{bucket}/*", storageHandler.Upload)
		})
	})

	return r
}
