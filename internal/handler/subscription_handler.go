package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedsync/internal/middleware"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/subscription"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// List は解決済みの購読一覧を返す。
	List(ctx context.Context) ([]model.Subscription, error)
	// Update はドメインのフィードURLを設定する。
	Update(ctx context.Context, domain, feedURL string) (*model.Subscription, error)
	// Delete は購読を解除し、必要に応じて関連記事を削除する。
	Delete(ctx context.Context, domain string, deleteArticles bool) (*subscription.DeleteResult, error)
}

// SubscriptionHandler は購読管理のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
	logger  *slog.Logger
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
		logger:  logger,
	}
}

// subscriptionResponse は購読情報のAPIレスポンス。
type subscriptionResponse struct {
	Domain       string     `json:"domain"`
	FeedURL      string     `json:"feed_url"`
	DiscoveredAt *time.Time `json:"discovered_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	ArticleCount int        `json:"article_count"`
}

type subscriptionListResponse struct {
	Subscriptions []subscriptionResponse `json:"subscriptions"`
	Count         int                    `json:"count"`
}

type subscriptionUpdateRequest struct {
	FeedURL string `json:"feed_url"`
}

type subscriptionUpdateResponse struct {
	Success      bool                 `json:"success"`
	Subscription subscriptionResponse `json:"subscription"`
}

type subscriptionDeleteResponse struct {
	Success             bool `json:"success"`
	RemovedSubscription bool `json:"removed_subscription"`
	DeletedArticles     int  `json:"deleted_articles"`
}

func toSubscriptionResponse(s model.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		Domain:       s.Domain,
		FeedURL:      s.FeedURL,
		UpdatedAt:    s.UpdatedAt,
		ArticleCount: s.ArticleCount,
	}
	if !s.DiscoveredAt.IsZero() {
		d := s.DiscoveredAt
		resp.DiscoveredAt = &d
	}
	return resp
}

// ListSubscriptions は購読一覧を取得する。
// GET /api/rss-subscriptions
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.List(r.Context())
	if err != nil {
		middleware.WriteServiceError(w, h.logger, err)
		return
	}

	out := subscriptionListResponse{Subscriptions: make([]subscriptionResponse, 0, len(subs))}
	for _, s := range subs {
		out.Subscriptions = append(out.Subscriptions, toSubscriptionResponse(s))
	}
	out.Count = len(out.Subscriptions)

	writeJSON(w, http.StatusOK, out)
}

// UpdateSubscription はドメインのフィードURLを設定する。
// PUT /api/rss-subscriptions/{domain}
func (h *SubscriptionHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	domain := domainParam(r)
	if domain == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidDomainError())
		return
	}

	var req subscriptionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestBodyError())
		return
	}

	sub, err := h.service.Update(r.Context(), domain, req.FeedURL)
	if err != nil {
		middleware.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionUpdateResponse{
		Success:      true,
		Subscription: toSubscriptionResponse(*sub),
	})
}

// DeleteSubscription は購読を解除する。
// DELETE /api/rss-subscriptions/{domain}?delete_articles=true
func (h *SubscriptionHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	domain := domainParam(r)
	if domain == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidDomainError())
		return
	}

	res, err := h.service.Delete(r.Context(), domain, parseTruthy(r.URL.Query().Get("delete_articles")))
	if err != nil {
		middleware.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionDeleteResponse{
		Success:             true,
		RemovedSubscription: res.Removed,
		DeletedArticles:     res.DeletedArticles,
	})
}

// domainParam はURLパスのドメインをデコードして返す。
func domainParam(r *http.Request) string {
	raw := chi.URLParam(r, "domain")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func parseTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
