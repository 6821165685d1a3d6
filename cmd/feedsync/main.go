// Command feedsync はクロール結果からフィードを探索し、新着記事を記事ストアへ同期する。
//
//	feedsync [sync] [--cron] [--skip-discovery] [--limit N] [--quiet]
//	feedsync worker
//	feedsync serve
//	feedsync migrate [up|down|version]
//	feedsync healthcheck
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/feedsync/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "feedsync: %v\n", err)
		stop()
		os.Exit(1)
	}
}
