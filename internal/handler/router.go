package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/laptrack/internal/middleware"
	"github.com/hitoshi/laptrack/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	TokenVerifier      middleware.TokenVerifier
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	HTTPMetrics        middleware.HTTPMetrics

	// 運用エンドポイント
	DB             Pinger
	MetricsHandler http.Handler

	// 認証・プロフィール
	AuthService    AuthServiceInterface
	ProfileService ProfileServiceInterface

	// 練習記録
	TrainingService TrainingServiceInterface

	// チーム
	TeamService TeamServiceInterface

	// 集計（個人・チーム・公開プロフィール）
	Stats StatsProvider
}

// StatsProvider は集計エンジンが提供する操作をまとめたインターフェース。
type StatsProvider interface {
	UserStatsProvider
	TeamStatsProvider
	PublicProfileProvider
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → SecurityHeaders → CORS
//	  /auth/register, /auth/login, /auth/google: RateLimit(Auth)
//	  その他の保護ルート: Auth → RateLimit(General)
//
// /health と /metrics は認証なしで公開する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPMetrics))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "NOT_FOUND",
			Message:  "resource not found",
			Category: "system",
			Action:   "URLを確認してください。",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusMethodNotAllowed, &model.APIError{
			Code:     "METHOD_NOT_ALLOWED",
			Message:  "method not allowed",
			Category: "system",
			Action:   "HTTPメソッドを確認してください。",
		})
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileService)
	sessionHandler := NewSessionHandler(deps.TrainingService, deps.Stats)
	teamHandler := NewTeamHandler(deps.TeamService, deps.Stats)
	userHandler := NewUserHandler(deps.Stats)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/google", authHandler.Google)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/profile", authHandler.GetProfile)
		r.Put("/auth/profile", authHandler.UpdateProfile)
		r.Put("/auth/change-password", authHandler.ChangePassword)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Post("/", sessionHandler.Create)
			r.Get("/stats", sessionHandler.Stats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Put("/", sessionHandler.Update)
				r.Delete("/", sessionHandler.Delete)
			})
		})

		r.Route("/teams", func(r chi.Router) {
			r.Get("/", teamHandler.GetMine)
			r.Post("/", teamHandler.Create)
			r.Post("/join", teamHandler.Join)
			r.Delete("/leave", teamHandler.Leave)
			r.Get("/stats", teamHandler.Stats)
			r.Get("/leaderboard", teamHandler.Leaderboard)
			r.Put("/members/{userId}/role", teamHandler.SetMemberRole)
		})

		r.Get("/users/{userId}/profile", userHandler.GetPublicProfile)
	})

	return r
}
