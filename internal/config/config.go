package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Files
	CrawlResultsFile string
	FeedsCacheFile   string

	// Fetch
	FetchTimeout       time.Duration
	FetchUserAgent     string
	FetchMaxSize       int64
	FetchMaxConcurrent int
	FetchRateLimit     float64
	FetchRateBurst     int
	SSRFProtection     bool

	// Sync
	MaxFeedItems       int
	SyncLookbackDays   int
	CronFirstRunDays   int
	ExcludedRSSDomains []string
	SyncSchedule       string

	// Server
	ServerPort string

	// Metrics
	PushgatewayURL string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envが存在しない場合はエラーにしない
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CrawlResultsFile = getEnvString("CRAWL_RESULTS_FILE", "browser_crawl_results.json")
	cfg.FeedsCacheFile = getEnvString("FEEDS_CACHE_FILE", "feeds_cache.json")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchUserAgent = getEnvString("FETCH_USER_AGENT", "Mozilla/5.0 (compatible; AINewsletterBot/1.0)")
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 4)
	cfg.FetchRateLimit = getEnvFloat("FETCH_RATE_LIMIT", 10)
	cfg.FetchRateBurst = getEnvInt("FETCH_RATE_BURST", 5)
	cfg.SSRFProtection = getEnvBool("FETCH_SSRF_PROTECTION", true)
	cfg.MaxFeedItems = getEnvInt("MAX_FEED_ITEMS", 50)
	cfg.SyncLookbackDays = getEnvInt("SYNC_LOOKBACK_DAYS", 7)
	cfg.CronFirstRunDays = getEnvInt("CRON_FIRST_RUN_DAYS", 1)
	cfg.ExcludedRSSDomains = getEnvList("EXCLUDED_RSS_DOMAINS", []string{"wired.com", "nytimes.com"})
	cfg.SyncSchedule = getEnvString("SYNC_SCHEDULE", "0 6 * * *")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.PushgatewayURL = getEnvString("METRICS_PUSHGATEWAY_URL", "")

	return cfg, nil
}

// FullSyncLookback は手動（フル）同期のさかのぼり期間を返す。
func (c *Config) FullSyncLookback() time.Duration {
	return time.Duration(c.SyncLookbackDays) * 24 * time.Hour
}

// CronFirstRunLookback は初回cron実行時のさかのぼり期間を返す。
// FullSyncLookbackとは独立した値として扱う。
func (c *Config) CronFirstRunLookback() time.Duration {
	return time.Duration(c.CronFirstRunDays) * 24 * time.Hour
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を小文字化・空要素除去してスライスで返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
