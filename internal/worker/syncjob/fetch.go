package syncjob

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/feedsync/internal/model"
)

// fetchAll はフィードを並列に取得・パースし、フィードの順序で連結した結果を返す。
// semaphoreで同時実行数をMaxConcurrentに制限する。
// 結果はフィードごとの枠に格納するため、完了順に関わらず出力順は一定になる。
func (o *Orchestrator) fetchAll(ctx context.Context, feeds []string, cutoff time.Time, progress *Progress) []model.FeedItem {
	results := make([][]model.FeedItem, len(feeds))

	sem := make(chan struct{}, o.settings.MaxConcurrent)
	var wg sync.WaitGroup

	for i, feedURL := range feeds {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, feedURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			items := o.deps.Parser.Parse(ctx, feedURL, cutoff)
			results[i] = items
			progress.Printf("%s: %d件", feedURL, len(items))
		}(i, feedURL)
	}

	wg.Wait()

	var total int
	for _, items := range results {
		total += len(items)
	}
	out := make([]model.FeedItem, 0, total)
	for _, items := range results {
		out = append(out, items...)
	}
	return out
}
