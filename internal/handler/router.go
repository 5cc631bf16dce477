package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authd/internal/metrics"
	"github.com/hitoshi/authd/internal/middleware"
	"github.com/hitoshi/authd/internal/model"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 可観測性
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics → RateLimit(General)
//
// 登録・ログインには認証情報系レート制限を追加し、/auth/meは認証ミドルウェアで保護する。
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)

	// 監視系ルート（レート制限の対象外）
	r.Get("/health", newHealthHandler(deps.HealthChecker))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/auth", func(r chi.Router) {
			// 認証情報を受け取るエンドポイントは専用レート制限を追加
			r.With(deps.RateLimiter.CredentialMiddleware()).Post("/register", authHandler.Register)
			r.With(deps.RateLimiter.CredentialMiddleware()).Post("/login", authHandler.Login)

			// OAuthフロー
			r.Get("/google/login", authHandler.GoogleLogin)
			r.Get("/google/callback", authHandler.GoogleCallback)

			// セッション管理
			r.Post("/logout", authHandler.Logout)
			r.With(middleware.NewAuthMiddleware(newMetricsRecordingResolver(deps.AuthService, deps.Metrics))).
				Get("/me", authHandler.Me)
		})
	})

	return r
}

// newHealthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.PingContext(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// metricsRecordingResolver はトークン検証失敗をメトリクスに記録するUserResolver。
type metricsRecordingResolver struct {
	service AuthServiceInterface
	metrics metrics.MetricsCollector
}

func newMetricsRecordingResolver(service AuthServiceInterface, collector metrics.MetricsCollector) *metricsRecordingResolver {
	return &metricsRecordingResolver{service: service, metrics: collector}
}

// CurrentUser はトークンを検証し、INVALID_TOKENの場合に失敗カウンタを増やす。
func (m *metricsRecordingResolver) CurrentUser(ctx context.Context, tokenString string) (*model.User, error) {
	user, err := m.service.CurrentUser(ctx, tokenString)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidToken {
			m.metrics.RecordTokenVerificationFailure()
		}
	}
	return user, err
}

var _ middleware.UserResolver = (*metricsRecordingResolver)(nil)
