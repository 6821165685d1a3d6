// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 探索結果のラベル値。
const (
	DiscoveryCacheHit    = "cache_hit"
	DiscoveryCacheNoFeed = "cache_no_feed"
	DiscoveryHTMLLink    = "html_link"
	DiscoveryProbe       = "probe"
	DiscoveryNoFeed      = "no_feed"
)

// フェッチ失敗理由のラベル値。
const (
	FailureRequest   = "request"
	FailureStatus    = "status"
	FailureRead      = "read"
	FailureParse     = "parse"
	// FailureTruncated はボディが読み取り上限で切り詰められたことを表す。
	FailureTruncated = "truncated"
)

// Recorder はメトリクス記録のインターフェース。
// 探索・フェッチ・同期ジョブから利用する。
type Recorder interface {
	RecordDiscovery(outcome string)
	RecordFetchSuccess()
	RecordFetchFailure(reason string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordItemsParsed(count int)
	RecordItemsUpserted(count int)
	RecordSyncRun(mode string, success bool, duration time.Duration)
	RecordCursor(t time.Time)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	discovery     *prometheus.CounterVec
	fetchSuccess  prometheus.Counter
	fetchFail     *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	itemsParsed   prometheus.Counter
	itemsUpserted prometheus.Counter
	syncRuns      *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	lastSuccess   *prometheus.GaugeVec
	cursor        prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		discovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_discovery_total",
			Help: "結果別のフィード探索数",
		}, []string{"outcome"}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_fetch_success_total",
			Help: "フィードフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_fetch_fail_total",
			Help: "理由別のフィードフェッチ失敗数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedsync_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_items_parsed_total",
			Help: "カットオフを通過した記事の合計数",
		}),
		itemsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_items_upserted_total",
			Help: "アップサートされた記事の合計数",
		}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_sync_runs_total",
			Help: "モード・結果別の同期実行数",
		}, []string{"mode", "result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedsync_sync_duration_seconds",
			Help:    "同期1回の所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feedsync_last_success_timestamp_seconds",
			Help: "モード別の最終成功時刻（UNIX秒）",
		}, []string{"mode"}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedsync_cursor_timestamp_seconds",
			Help: "定期同期カーソルの時刻（UNIX秒）",
		}),
	}

	reg.MustRegister(
		c.discovery,
		c.fetchSuccess,
		c.fetchFail,
		c.httpStatus,
		c.fetchLatency,
		c.itemsParsed,
		c.itemsUpserted,
		c.syncRuns,
		c.syncDuration,
		c.lastSuccess,
		c.cursor,
	)

	return c
}

// RecordDiscovery は探索結果を記録する。
func (c *Collector) RecordDiscovery(outcome string) {
	c.discovery.WithLabelValues(outcome).Inc()
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordItemsParsed はカットオフを通過した記事数を記録する。
func (c *Collector) RecordItemsParsed(count int) {
	c.itemsParsed.Add(float64(count))
}

// RecordItemsUpserted はアップサートされた記事数を記録する。
func (c *Collector) RecordItemsUpserted(count int) {
	c.itemsUpserted.Add(float64(count))
}

// RecordSyncRun は同期1回分の結果を記録する。
// 成功時のみ最終成功時刻を更新する。
func (c *Collector) RecordSyncRun(mode string, success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
		c.lastSuccess.WithLabelValues(mode).SetToCurrentTime()
	}
	c.syncRuns.WithLabelValues(mode, result).Inc()
	c.syncDuration.Observe(duration.Seconds())
}

// RecordCursor は前進させたカーソルの時刻を記録する。
func (c *Collector) RecordCursor(t time.Time) {
	c.cursor.Set(float64(t.UnixNano()) / 1e9)
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordDiscovery(string) {}
func (Nop) RecordFetchSuccess() {}
func (Nop) RecordFetchFailure(string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordItemsParsed(int) {}
func (Nop) RecordItemsUpserted(int) {}
func (Nop) RecordSyncRun(string, bool, time.Duration) {}
func (Nop) RecordCursor(time.Time) {}

// OrNop はrがnilの場合にNopを返す。
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
