package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedsync/internal/config"
	"github.com/hitoshi/feedsync/internal/cursor"
	"github.com/hitoshi/feedsync/internal/database"
	"github.com/hitoshi/feedsync/internal/feed"
	"github.com/hitoshi/feedsync/internal/feedcache"
	"github.com/hitoshi/feedsync/internal/handler"
	"github.com/hitoshi/feedsync/internal/item"
	"github.com/hitoshi/feedsync/internal/logger"
	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/middleware"
	"github.com/hitoshi/feedsync/internal/repository"
	"github.com/hitoshi/feedsync/internal/security"
	"github.com/hitoshi/feedsync/internal/subscription"
	"github.com/hitoshi/feedsync/internal/worker/schedule"
	"github.com/hitoshi/feedsync/internal/worker/syncjob"
)

// dbConnectTimeout はストアへの初回接続確認のタイムアウト。
const dbConnectTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
func Init(w io.Writer, level slog.Level) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, level)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。stdoutは同期の進捗表示、stderrはログに使う。
// ctxのキャンセルで実行中のコマンドを停止する。
func Run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	cmd, rest := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	switch cmd {
	case CommandSync:
		flags, err := ParseSyncFlags(rest, stderr)
		if err != nil {
			return err
		}
		cfg, err := Init(stderr, logger.LevelFor(flags.Verbose()))
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		return runSync(ctx, cfg, flags, stdout)
	case CommandMigrate:
		action, err := ParseMigrateAction(rest)
		if err != nil {
			return err
		}
		cfg, err := Init(stderr, slog.LevelInfo)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		return runMigrate(cfg, action, stdout)
	}

	cfg, err := Init(stderr, slog.LevelInfo)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	if cmd == CommandWorker {
		return runWorker(ctx, cfg)
	}
	return runServe(ctx, cfg)
}

// syncComponents は組み立て済みの同期ジョブとそのメトリクスレジストリ。
type syncComponents struct {
	registry     *prometheus.Registry
	orchestrator *syncjob.Orchestrator
}

// buildSyncComponents はDB接続と設定から同期ジョブの依存関係を組み立てる。
func buildSyncComponents(cfg *config.Config, db *sql.DB, log *slog.Logger, out io.Writer) *syncComponents {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 1. リポジトリの初期化
	articleRepo := repository.NewPostgresArticleRepo(db)
	cronStateRepo := repository.NewPostgresCronStateRepo(db)

	// 2. HTTPクライアントの初期化（探索とフェッチで共有し、レート制限も共有する）
	requester := feed.NewRequester(security.NewClientFactory(cfg.SSRFProtection), feed.RequesterConfig{
		Timeout:       cfg.FetchTimeout,
		UserAgent:     cfg.FetchUserAgent,
		MaxBodySize:   cfg.FetchMaxSize,
		RatePerSecond: cfg.FetchRateLimit,
		RateBurst:     cfg.FetchRateBurst,
	})

	// 3. ドメインサービスの初期化
	cacheStore := feedcache.NewFileStore(cfg.FeedsCacheFile, log)
	discoverer := feed.NewDiscoverer(requester, log, collector)
	parser := feed.NewParser(requester, security.NewTextExtractor(), log, collector, cfg.MaxFeedItems)
	upsertSvc := item.NewArticleUpsertService(articleRepo, log)
	cursorStore := cursor.NewStore(cronStateRepo, log)

	orchestrator := syncjob.NewOrchestrator(syncjob.Settings{
		CrawlResultsFile: cfg.CrawlResultsFile,
		ExcludedDomains:  cfg.ExcludedRSSDomains,
		MaxConcurrent:    cfg.FetchMaxConcurrent,
		FullLookback:     cfg.FullSyncLookback(),
		FirstRunLookback: cfg.CronFirstRunLookback(),
	}, syncjob.Deps{
		Cache:     cacheStore,
		Resolver:  discoverer,
		Parser:    parser,
		Committer: upsertSvc,
		Cursor:    cursorStore,
		Stats:     articleRepo,
		Logger:    log,
		Metrics:   collector,
		Out:       out,
	})

	return &syncComponents{
		registry:     registry,
		orchestrator: orchestrator,
	}
}

// runSync は同期を1回実行する。
// クロール結果ファイルの不備とストアの障害はエラーとして返し、終了ステータスを非0にする。
func runSync(ctx context.Context, cfg *config.Config, flags SyncFlags, stdout io.Writer) error {
	db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	log := slog.Default()
	comps := buildSyncComponents(cfg, db, log, stdout)

	res, runErr := comps.orchestrator.Run(ctx, syncjob.Options{
		Cron:          flags.Cron,
		SkipDiscovery: flags.SkipDiscovery,
		Limit:         flags.Limit,
		Verbose:       flags.Verbose(),
	})

	// 失敗した実行のメトリクスも送る
	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(pushCtx, cfg.PushgatewayURL, comps.registry); err != nil {
		log.Warn("メトリクスの送信に失敗しました", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return runErr
	}
	if flags.Verbose() {
		fmt.Fprintf(stdout, "完了: %d件の記事を保存しました (%s)\n", res.ItemsWritten, res.Duration.Round(time.Millisecond))
	}
	return nil
}

// pushingRunner は実行ごとにメトリクスをPushgatewayへ送るRunner。
type pushingRunner struct {
	inner    schedule.Runner
	gateway  string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func (p *pushingRunner) Run(ctx context.Context, opts syncjob.Options) (*syncjob.Result, error) {
	res, err := p.inner.Run(ctx, opts)
	if pushErr := metrics.Push(ctx, p.gateway, p.gatherer); pushErr != nil {
		p.logger.Warn("メトリクスの送信に失敗しました", slog.String("error", pushErr.Error()))
	}
	return res, err
}

// runWorker はワーカーモードで起動する。
// SYNC_SCHEDULEに従ってcronモードの同期を繰り返し、ctxのキャンセルで停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	log := slog.Default()
	comps := buildSyncComponents(cfg, db, log, io.Discard)

	runner := &pushingRunner{
		inner:    comps.orchestrator,
		gateway:  cfg.PushgatewayURL,
		gatherer: comps.registry,
		logger:   log,
	}
	scheduler, err := schedule.New(cfg.SyncSchedule, runner, log)
	if err != nil {
		return err
	}

	slog.Info("worker starting",
		slog.String("schedule", cfg.SyncSchedule),
		slog.Time("next_run", scheduler.Next(time.Now())),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runServe は管理APIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	log := slog.Default()
	registry := prometheus.NewRegistry()
	articleRepo := repository.NewPostgresArticleRepo(db)
	cacheStore := feedcache.NewFileStore(cfg.FeedsCacheFile, log)
	subService := subscription.NewService(cacheStore, articleRepo, log)

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:              log,
		HealthChecker:       db,
		MetricsHandler:      metrics.Handler(registry),
		RateLimiter:         rateLimiter,
		SubscriptionService: subService,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, action MigrateAction, stdout io.Writer) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
