package metrics

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJobName はPushgatewayに送るジョブ名。
const PushJobName = "feedsync"

// Push はワンショット実行のメトリクスをPushgatewayへ送る。
// スクレイプされる前にプロセスが終了するsyncコマンド向け。
// gatewayURLが空の場合は何もしない。
func Push(ctx context.Context, gatewayURL string, gatherer prometheus.Gatherer) error {
	if gatewayURL == "" {
		return nil
	}
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "unknown"
	}

	if err := push.New(gatewayURL, PushJobName).
		Gatherer(gatherer).
		Grouping("instance", instance).
		PushContext(ctx); err != nil {
		return fmt.Errorf("pushgatewayへの送信に失敗: %w", err)
	}
	return nil
}
