// Package subscription は購読管理のドメインロジックを提供する。
//
// 購読はフィードキャッシュ上の解決済みエントリそのもので、専用のテーブルは持たない。
// 購読の変更はキャッシュファイルを書き換え、次回の同期から反映される。
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/feedsync/internal/crawl"
	"github.com/hitoshi/feedsync/internal/feedcache"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/repository"
	"github.com/hitoshi/feedsync/internal/security"
)

// CacheStore はフィードキャッシュの読み書きのインターフェース。
type CacheStore interface {
	Load() (*feedcache.Cache, error)
	Save(c *feedcache.Cache) error
}

// Service は購読管理のサービス層。
// 購読一覧取得、フィードURLの設定、購読解除のビジネスロジックを提供する。
type Service struct {
	mu       sync.Mutex
	cache    CacheStore
	articles repository.ArticleRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(cache CacheStore, articles repository.ArticleRepository, logger *slog.Logger) *Service {
	return &Service{
		cache:    cache,
		articles: articles,
		logger:   logger,
		now:      time.Now,
	}
}

// List は解決済みの購読を記事数付きでドメイン昇順に返す。
// NoFeedのドメインは含めない。
func (s *Service) List(ctx context.Context) ([]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("フィードキャッシュの読み込みに失敗しました: %w", err)
	}
	refs, err := s.articles.ListHostRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}

	var subs []model.Subscription
	for _, domain := range cache.Domains() {
		e, _ := cache.Get(domain)
		if !e.IsResolved() {
			continue
		}
		sub := toSubscription(domain, e)
		sub.ArticleCount = len(matchingIDs(refs, domain, e.FeedURL()))
		subs = append(subs, sub)
	}
	return subs, nil
}

// Update はドメインのフィードURLを設定する。
// スキームがない場合はhttps://を補う。NoFeedのドメインは解決済みになる。
// 既に解決済みの場合は発見日時を保ち、更新日時を記録する。
func (s *Service) Update(ctx context.Context, domain, feedURL string) (*model.Subscription, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return nil, model.NewInvalidDomainError()
	}
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, model.NewInvalidFeedURLError("URLが空です")
	}
	if !strings.Contains(feedURL, "://") {
		feedURL = "https://" + feedURL
	}
	if err := security.ValidateFeedURL(feedURL); err != nil {
		return nil, model.NewInvalidFeedURLError(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("フィードキャッシュの読み込みに失敗しました: %w", err)
	}

	now := s.now()
	discoveredAt := now
	if prev, ok := cache.Get(domain); ok && prev.IsResolved() && !prev.DiscoveredAt().IsZero() {
		discoveredAt = prev.DiscoveredAt()
	}
	entry := feedcache.Resolved(feedURL, discoveredAt).WithUpdatedAt(now)
	cache.Set(domain, entry)

	if err := s.cache.Save(cache); err != nil {
		return nil, fmt.Errorf("フィードキャッシュの保存に失敗しました: %w", err)
	}

	s.logger.Info("購読のフィードURLを更新しました",
		slog.String("domain", domain),
		slog.String("feed_url", feedURL),
	)

	sub := toSubscription(domain, entry)
	refs, err := s.articles.ListHostRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	sub.ArticleCount = len(matchingIDs(refs, domain, feedURL))
	return &sub, nil
}

// DeleteResult は購読解除の結果。
type DeleteResult struct {
	// Removed はキャッシュエントリが存在して削除されたかを示す。
	Removed         bool
	DeletedArticles int
}

// Delete はドメインのキャッシュエントリを削除し、次回の同期で再探索させる。
// エントリが存在しなくてもエラーにはしない。
// deleteArticlesが真の場合は、ドメインまたはフィードURLのホストに一致する記事も削除する。
func (s *Service) Delete(ctx context.Context, domain string, deleteArticles bool) (*DeleteResult, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return nil, model.NewInvalidDomainError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("フィードキャッシュの読み込みに失敗しました: %w", err)
	}

	res := &DeleteResult{}
	entry, _ := cache.Get(domain)
	if cache.Delete(domain) {
		if err := s.cache.Save(cache); err != nil {
			return nil, fmt.Errorf("フィードキャッシュの保存に失敗しました: %w", err)
		}
		res.Removed = true
	}

	if deleteArticles {
		refs, err := s.articles.ListHostRefs(ctx)
		if err != nil {
			return res, fmt.Errorf("記事の取得に失敗しました: %w", err)
		}
		if ids := matchingIDs(refs, domain, entry.FeedURL()); len(ids) > 0 {
			res.DeletedArticles, err = s.articles.DeleteByIDs(ctx, ids)
			if err != nil {
				return res, fmt.Errorf("記事の削除に失敗しました: %w", err)
			}
		}
	}

	s.logger.Info("購読を削除しました",
		slog.String("domain", domain),
		slog.Bool("removed", res.Removed),
		slog.Int("deleted_articles", res.DeletedArticles),
	)
	return res, nil
}

func toSubscription(domain string, e feedcache.Entry) model.Subscription {
	return model.Subscription{
		Domain:       domain,
		FeedURL:      e.FeedURL(),
		DiscoveredAt: e.DiscoveredAt(),
		UpdatedAt:    e.UpdatedAt(),
	}
}

// matchingIDs はドメインまたはフィードURLのホストに一致する記事のIDを返す。
// 記事のsourceとURLのホストの両方を、先頭のwww.を除いて比較する。
func matchingIDs(refs []repository.ArticleHostRef, domain, feedURL string) []string {
	hosts := map[string]struct{}{domain: {}}
	if h := crawl.NormalizeDomain(feedURL); h != "" {
		hosts[h] = struct{}{}
	}

	var ids []string
	for _, ref := range refs {
		if _, ok := hosts[normalizeDomain(ref.Source)]; ok {
			ids = append(ids, ref.ID)
			continue
		}
		if _, ok := hosts[crawl.NormalizeDomain(ref.URL)]; ok {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

// normalizeDomain はスキームのないホスト名（ポート付きも可）を正規化する。
func normalizeDomain(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return crawl.NormalizeDomain(host)
}
