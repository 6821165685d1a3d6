// Package model はドメインモデルを定義する。
package model

import "time"

// FeedItem はフィードの1エントリを正規化した未保存の記事データを表す。
// フィードパーサーが生成し、重複排除を経て記事ストアにコミットされるまでメモリ上にのみ存在する。
type FeedItem struct {
	Title     string
	URL       string
	Summary   string     // HTML除去済み、最大500文字
	Published *time.Time // 公開日時を解決できなかった場合はnil
	Source    string     // フィードURLのホスト名
}

// Article は記事ストアに保存された記事を表す。
// IDはURLから決定的に導出される（item.ArticleID）。
type Article struct {
	ID        string
	URL       string
	Title     string
	Summary   string
	Source    string
	Published *time.Time
	Topic     string
	FetchedAt time.Time
	Week      string
}

// CurationStatus は記事のキュレーション状態を表す。
type CurationStatus string

const (
	// CurationStatusPending は未キュレーションの記事。
	CurationStatusPending CurationStatus = "pending"
	// CurationStatusShortlisted はニュースレター候補に選ばれた記事。
	CurationStatusShortlisted CurationStatus = "shortlisted"
	// CurationStatusRejected は除外された記事。
	CurationStatusRejected CurationStatus = "rejected"
)

// ArticleStats は現在（未アーカイブ）の記事の集計を表す。
type ArticleStats struct {
	Total       int
	Pending     int
	Shortlisted int
	Rejected    int
}
