// Package item は取得した記事の重複排除と記事ストアへの保存を提供する。
package item

import "github.com/hitoshi/feedsync/internal/model"

// Deduplicate はURLが既出の記事を除き、初出順に返す。
// URLが空の記事は識別できないため捨てる。
func Deduplicate(items []model.FeedItem) []model.FeedItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.FeedItem, 0, len(items))
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		if _, dup := seen[it.URL]; dup {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	return out
}
