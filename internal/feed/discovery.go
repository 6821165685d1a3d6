package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/feedsync/internal/feedcache"
	"github.com/hitoshi/feedsync/internal/metrics"
)

// ProbePatterns はHTMLにフィードリンクがない場合に試すパス。順序に意味がある。
var ProbePatterns = []string{
	"/feed",
	"/rss",
	"/atom.xml",
	"/feed.xml",
	"/rss.xml",
	"/feed/",
	"/rss/",
	"/blog/feed",
	"/blog/rss",
	"/blog/feed.xml",
	"/blog/rss.xml",
	"/index.xml",
	"/feeds/posts/default",
}

// Getter はURLを取得するインターフェース。Requesterが実装する。
type Getter interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
}

// Discoverer はドメインのフィードURLを探索する。
// キャッシュ、HTMLのlink要素、既知パスの順に試し、結果を必ずキャッシュに書き込む。
type Discoverer struct {
	getter  Getter
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewDiscoverer はDiscovererを生成する。recorderはnilでもよい。
func NewDiscoverer(getter Getter, logger *slog.Logger, recorder metrics.Recorder) *Discoverer {
	return &Discoverer{
		getter:  getter,
		logger:  logger,
		metrics: metrics.OrNop(recorder),
		now:     time.Now,
	}
}

// Resolve はドメインのフィードURLを返す。見つからない場合はfalse。
//
// キャッシュにResolvedがあればそのURLを、NoFeedがあれば即座にfalseを返し、
// いずれもネットワークにはアクセスしない。キャッシュにない場合は探索し、
// 結果をResolvedまたはNoFeedとしてcacheに記録する。
// ctxがキャンセルされた場合は結果を記録しない。
func (d *Discoverer) Resolve(ctx context.Context, domain string, cache *feedcache.Cache) (string, bool) {
	if e, ok := cache.Get(domain); ok {
		if e.IsResolved() {
			d.metrics.RecordDiscovery(metrics.DiscoveryCacheHit)
			return e.FeedURL(), true
		}
		d.metrics.RecordDiscovery(metrics.DiscoveryCacheNoFeed)
		return "", false
	}

	d.logger.Info("フィードを探索します", slog.String("domain", domain))

	feedURL, outcome := d.discover(ctx, domain)
	if ctx.Err() != nil {
		return "", false
	}

	if feedURL == "" {
		cache.Set(domain, feedcache.NoFeed(d.now()))
		d.metrics.RecordDiscovery(metrics.DiscoveryNoFeed)
		d.logger.Info("フィードが見つかりませんでした", slog.String("domain", domain))
		return "", false
	}

	cache.Set(domain, feedcache.Resolved(feedURL, d.now()))
	d.metrics.RecordDiscovery(outcome)
	d.logger.Info("フィードを発見しました",
		slog.String("domain", domain),
		slog.String("feed_url", feedURL),
		slog.String("method", outcome),
	)
	return feedURL, true
}

func (d *Discoverer) discover(ctx context.Context, domain string) (string, string) {
	bases := []string{"https://" + domain, "https://www." + domain}

	for _, base := range bases {
		if u := d.fromHTML(ctx, base); u != "" {
			return u, metrics.DiscoveryHTMLLink
		}
		if ctx.Err() != nil {
			return "", ""
		}
	}

	for _, base := range bases {
		for _, pattern := range ProbePatterns {
			if d.probe(ctx, base+pattern) {
				return base + pattern, metrics.DiscoveryProbe
			}
			if ctx.Err() != nil {
				return "", ""
			}
		}
	}
	return "", ""
}

// fromHTML はページを取得し、最初のフィードリンクを返す。
func (d *Discoverer) fromHTML(ctx context.Context, pageURL string) string {
	resp, err := d.getter.Get(ctx, pageURL)
	if err != nil {
		d.logger.Debug("ページの取得に失敗しました",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return ""
	}
	if !resp.IsSuccess() {
		d.logger.Debug("ページの取得に失敗しました",
			slog.String("url", pageURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return ""
	}

	links := ParseFeedLinksFromHTML(resp.Body, pageURL)
	if len(links) == 0 {
		return ""
	}
	return links[0]
}

// probe は候補URLがフィードを返すかを確認する。
func (d *Discoverer) probe(ctx context.Context, candidate string) bool {
	resp, err := d.getter.Get(ctx, candidate)
	if err != nil || !resp.IsSuccess() {
		return false
	}
	return LooksLikeFeed(resp.ContentType, resp.Body)
}
