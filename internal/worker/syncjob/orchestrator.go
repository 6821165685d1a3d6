// Package syncjob はクロール結果からフィードを探索・取得し、新着記事を記事ストアに
// 保存する同期ジョブを提供する。
//
// 1回の実行は、カットオフ計算、ドメイン抽出、フィード探索、取得とパース、
// 重複排除、保存、（cronモードのみ）カーソル更新の順に進む。
// 途中で中断するのはクロール結果ファイルの読み込み失敗と記事ストア・カーソルの
// 障害のみで、ドメイン単位・フィード単位の失敗はログに残して続行する。
package syncjob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/crawl"
	"github.com/hitoshi/feedsync/internal/feedcache"
	"github.com/hitoshi/feedsync/internal/item"
	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/model"
)

// 実行モードのラベル値。
const (
	ModeCron = "cron"
	ModeFull = "full"
)

// CacheStore はフィードキャッシュの読み書きのインターフェース。
type CacheStore interface {
	Load() (*feedcache.Cache, error)
	Save(c *feedcache.Cache) error
}

// Resolver はドメインからフィードURLを解決するインターフェース。
type Resolver interface {
	Resolve(ctx context.Context, domain string, cache *feedcache.Cache) (string, bool)
}

// FeedParser はフィードを取得してカットオフ以降のエントリを返すインターフェース。
type FeedParser interface {
	Parse(ctx context.Context, feedURL string, cutoff time.Time) []model.FeedItem
}

// Committer は記事ストアへの保存のインターフェース。
type Committer interface {
	Upsert(ctx context.Context, items []model.FeedItem, week string) (int, error)
}

// CursorStore はcronモードのカーソルのインターフェース。
type CursorStore interface {
	LastRun(ctx context.Context) (*time.Time, error)
	Advance(ctx context.Context, t time.Time) error
}

// StatsSource は実行後に表示する集計のインターフェース。
type StatsSource interface {
	CurrentStats(ctx context.Context) (*model.ArticleStats, error)
}

// Settings は同期ジョブの設定値。
type Settings struct {
	CrawlResultsFile string
	ExcludedDomains  []string
	MaxConcurrent    int
	// FullLookback は手動同期のさかのぼり期間。
	FullLookback time.Duration
	// FirstRunLookback はカーソル未保存時のcron同期のさかのぼり期間。
	FirstRunLookback time.Duration
}

// Deps は同期ジョブが利用するコンポーネント。
// Stats・Metrics・Outはnilでもよい。
type Deps struct {
	Cache     CacheStore
	Resolver  Resolver
	Parser    FeedParser
	Committer Committer
	Cursor    CursorStore
	Stats     StatsSource
	Logger    *slog.Logger
	Metrics   metrics.Recorder
	// Out は詳細モードの進捗表示の出力先。
	Out io.Writer
}

// Options は1回の実行のオプション。
type Options struct {
	// Cron はカーソルを起点にした差分同期を行う。
	Cron bool
	// SkipDiscovery はキャッシュ済みのドメインのみを対象にし、新規探索を行わない。
	SkipDiscovery bool
	// Limit は対象ドメイン数の上限。0以下で無制限。
	Limit int
	// Verbose は進捗を出力する。
	Verbose bool
}

// Result は1回の実行結果。
type Result struct {
	RunID          string
	Mode           string
	Cutoff         time.Time
	Domains        int
	Feeds          int
	ItemsFetched   int
	ItemsUnique    int
	ItemsWritten   int
	Week           string
	CursorAdvanced bool
	Duration       time.Duration
}

// Orchestrator は同期ジョブを実行する。
// 同時に複数の実行が走らないことを前提とする。
type Orchestrator struct {
	settings Settings
	deps     Deps
	filter   *crawl.ExclusionFilter
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
// MaxConcurrentが0以下の場合は1件ずつ取得する。
func NewOrchestrator(settings Settings, deps Deps) *Orchestrator {
	if settings.MaxConcurrent <= 0 {
		settings.MaxConcurrent = 1
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		settings: settings,
		deps:     deps,
		filter:   crawl.NewExclusionFilter(settings.ExcludedDomains),
		logger:   logger,
		metrics:  metrics.OrNop(deps.Metrics),
		now:      time.Now,
	}
}

// ComputeCutoff は取り込む記事の最も古い公開日時を返す。
//
// cronモードではカーソルがあればその時刻、なければnowからfirstRunLookbackさかのぼった時刻。
// 手動モードではカーソルに関係なくnowからfullLookbackさかのぼった時刻。
func ComputeCutoff(cron bool, lastRun *time.Time, now time.Time, fullLookback, firstRunLookback time.Duration) time.Time {
	if !cron {
		return now.Add(-fullLookback)
	}
	if lastRun != nil {
		return *lastRun
	}
	return now.Add(-firstRunLookback)
}

// Run は同期ジョブを1回実行する。
// クロール結果ファイルを読めない場合は*model.CrawlInputErrorを返す。
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := o.now()
	mode := ModeFull
	if opts.Cron {
		mode = ModeCron
	}
	res := &Result{RunID: uuid.NewString(), Mode: mode}
	logger := o.logger.With(
		slog.String("run_id", res.RunID),
		slog.String("mode", mode),
	)

	err := o.run(ctx, opts, start, res, logger)
	res.Duration = o.now().Sub(start)
	o.metrics.RecordSyncRun(mode, err == nil, res.Duration)

	if err != nil {
		logger.Error("同期に失敗しました", slog.String("error", err.Error()))
		return res, err
	}
	logger.Info("同期が完了しました",
		slog.Int("domains", res.Domains),
		slog.Int("feeds", res.Feeds),
		slog.Int("items_unique", res.ItemsUnique),
		slog.Int("items_written", res.ItemsWritten),
		slog.Float64("duration_ms", float64(res.Duration.Milliseconds())),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, opts Options, start time.Time, res *Result, logger *slog.Logger) error {
	progress := newProgress(o.deps.Out, opts.Verbose)

	// カットオフ計算
	var lastRun *time.Time
	if opts.Cron {
		var err error
		lastRun, err = o.deps.Cursor.LastRun(ctx)
		if err != nil {
			return err
		}
	}
	res.Cutoff = ComputeCutoff(opts.Cron, lastRun, start, o.settings.FullLookback, o.settings.FirstRunLookback)
	progress.Printf("カットオフ: %s", res.Cutoff.Format(time.RFC3339))

	// ドメイン抽出
	crawled, err := crawl.Load(o.settings.CrawlResultsFile)
	if err != nil {
		return err
	}
	domains := o.filter.Apply(crawl.ExtractDomains(crawled))
	if opts.Limit > 0 && len(domains) > opts.Limit {
		domains = domains[:opts.Limit]
	}
	res.Domains = len(domains)
	progress.Printf("対象ドメイン: %d件", len(domains))

	// フィード探索
	feeds, err := o.discover(ctx, domains, opts.SkipDiscovery, progress, logger)
	if err != nil {
		return err
	}
	res.Feeds = len(feeds)
	progress.Printf("フィード: %d件", len(feeds))

	// 取得とパース
	fetched := o.fetchAll(ctx, feeds, res.Cutoff, progress)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("同期が中断されました: %w", err)
	}
	res.ItemsFetched = len(fetched)

	// 重複排除と保存
	unique := item.Deduplicate(fetched)
	res.ItemsUnique = len(unique)
	res.Week = item.WeekOf(start)

	written, err := o.deps.Committer.Upsert(ctx, unique, res.Week)
	if err != nil {
		return err
	}
	res.ItemsWritten = written
	o.metrics.RecordItemsUpserted(written)
	progress.Printf("保存: %d件 (取得 %d件, 重複排除後 %d件, %s)", written, res.ItemsFetched, res.ItemsUnique, res.Week)

	// カーソル更新。新着0件でも実行開始時刻まで進める。
	if opts.Cron {
		if err := o.deps.Cursor.Advance(ctx, start); err != nil {
			return err
		}
		res.CursorAdvanced = true
		o.metrics.RecordCursor(start)
		logger.Info("カーソルを更新しました", slog.Time("last_run", start))
	}

	if opts.Verbose {
		o.printStats(ctx, progress, logger)
	}
	return nil
}

// discover はドメインごとにフィードURLを解決し、重複を除いたフィードURLを返す。
// 新規に探索したドメインがある場合は、探索後にそのドメインだけをキャッシュへ書き戻す。
func (o *Orchestrator) discover(ctx context.Context, domains []string, skip bool, progress *Progress, logger *slog.Logger) ([]string, error) {
	cache, err := o.deps.Cache.Load()
	if err != nil {
		logger.Warn("フィードキャッシュを読み込めないため空として扱います",
			slog.String("error", err.Error()),
		)
		cache = feedcache.New()
	}

	seen := make(map[string]struct{}, len(domains))
	feeds := make([]string, 0, len(domains))
	var discovered []string
	add := func(feedURL string) {
		if _, ok := seen[feedURL]; ok {
			return
		}
		seen[feedURL] = struct{}{}
		feeds = append(feeds, feedURL)
	}

	for i, domain := range domains {
		if skip {
			if e, ok := cache.Get(domain); ok && e.IsResolved() {
				add(e.FeedURL())
			}
			continue
		}

		had := cache.Has(domain)
		feedURL, ok := o.deps.Resolver.Resolve(ctx, domain, cache)
		if !had && cache.Has(domain) {
			discovered = append(discovered, domain)
		}
		if ok {
			add(feedURL)
			progress.Printf("[%d/%d] %s -> %s", i+1, len(domains), domain, feedURL)
		} else {
			progress.Printf("[%d/%d] %s -> フィードなし", i+1, len(domains), domain)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if len(discovered) > 0 {
		o.saveDiscovered(cache, discovered, logger)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("同期が中断されました: %w", err)
	}
	return feeds, nil
}

// saveDiscovered は今回新たに探索したドメインだけを最新のキャッシュファイルに反映して保存する。
// 実行中に購読APIで追加・変更・削除されたエントリはそのまま残し、同じドメインは購読APIの値を優先する。
func (o *Orchestrator) saveDiscovered(cache *feedcache.Cache, discovered []string, logger *slog.Logger) {
	latest, err := o.deps.Cache.Load()
	if err != nil {
		logger.Warn("フィードキャッシュを再読み込みできないため実行開始時の内容で保存します",
			slog.String("error", err.Error()),
		)
		latest = cache
	}

	for _, domain := range discovered {
		if latest.Has(domain) {
			continue
		}
		if e, ok := cache.Get(domain); ok {
			latest.Set(domain, e)
		}
	}

	if err := o.deps.Cache.Save(latest); err != nil {
		logger.Error("フィードキャッシュの保存に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) printStats(ctx context.Context, progress *Progress, logger *slog.Logger) {
	if o.deps.Stats == nil {
		return
	}
	stats, err := o.deps.Stats.CurrentStats(ctx)
	if err != nil {
		logger.Warn("記事の集計に失敗しました", slog.String("error", err.Error()))
		return
	}
	progress.Printf("現在の記事: %d件 (未キュレーション %d件)", stats.Total, stats.Pending)
}
