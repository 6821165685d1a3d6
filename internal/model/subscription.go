package model

import "time"

// Subscription はフィードキャッシュ上で解決済みのドメインとフィードURLの組を表す。
// ArticleCountはドメインまたはフィードURLのホストに一致する保存済み記事数。
type Subscription struct {
	Domain       string
	FeedURL      string
	DiscoveredAt time.Time
	UpdatedAt    *time.Time
	ArticleCount int
}
