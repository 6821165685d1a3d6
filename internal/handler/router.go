// Package handler は管理APIのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/feedsync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger        *slog.Logger
	HealthChecker HealthChecker
	// MetricsHandler がnilの場合は/metricsを公開しない。
	MetricsHandler http.Handler
	// RateLimiter は購読の変更（PUT/DELETE）に適用する。nilの場合は制限しない。
	RateLimiter *middleware.RateLimiter

	SubscriptionService SubscriptionServiceInterface
}

// NewRouter は管理APIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	subHandler := NewSubscriptionHandler(deps.SubscriptionService, logger)

	r.Route("/api/rss-subscriptions", func(r chi.Router) {
		r.Get("/", subHandler.ListSubscriptions)

		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware())
			}
			r.Put("/{domain}", subHandler.UpdateSubscription)
			r.Delete("/{domain}", subHandler.DeleteSubscription)
		})
	})

	return r
}
