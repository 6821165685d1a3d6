// Package feedcache はドメインごとのフィード探索結果のキャッシュを提供する。
//
// 各ドメインは高々1つのエントリを持ち、エントリは解決済み（Resolved）か
// フィードなし（NoFeed）のどちらかである。NoFeedのドメインは、キャッシュが
// 外部から編集・削除されない限り以後の実行で探索されない。有効期限はない。
package feedcache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind はキャッシュエントリの種別。
type Kind int

const (
	// KindResolved はフィードURLが解決済みのエントリ。
	KindResolved Kind = iota + 1
	// KindNoFeed はフィードが見つからなかったことを示すエントリ。
	KindNoFeed
)

// Entry はドメイン1件分の探索結果。
// ResolvedとNoFeedの2種類のみで、コンストラクタ経由で生成する。
type Entry struct {
	kind      Kind
	feedURL   string
	at        time.Time
	updatedAt *time.Time
}

// Resolved は解決済みエントリを生成する。
func Resolved(feedURL string, discoveredAt time.Time) Entry {
	return Entry{kind: KindResolved, feedURL: feedURL, at: discoveredAt}
}

// NoFeed はフィードなしエントリを生成する。
func NoFeed(checkedAt time.Time) Entry {
	return Entry{kind: KindNoFeed, at: checkedAt}
}

// Kind はエントリの種別を返す。
func (e Entry) Kind() Kind { return e.kind }

// IsResolved は解決済みエントリかを返す。
func (e Entry) IsResolved() bool { return e.kind == KindResolved }

// IsNoFeed はフィードなしエントリかを返す。
func (e Entry) IsNoFeed() bool { return e.kind == KindNoFeed }

// FeedURL は解決済みのフィードURLを返す。NoFeedの場合は空文字列。
func (e Entry) FeedURL() string { return e.feedURL }

// DiscoveredAt は解決日時（Resolved）を返す。
func (e Entry) DiscoveredAt() time.Time {
	if e.kind != KindResolved {
		return time.Time{}
	}
	return e.at
}

// CheckedAt はフィードなしと判定した日時（NoFeed）を返す。
func (e Entry) CheckedAt() time.Time {
	if e.kind != KindNoFeed {
		return time.Time{}
	}
	return e.at
}

// UpdatedAt は購読管理で手動更新された日時を返す。未更新の場合はnil。
func (e Entry) UpdatedAt() *time.Time { return e.updatedAt }

// WithUpdatedAt は手動更新日時を付与したエントリを返す。
func (e Entry) WithUpdatedAt(t time.Time) Entry {
	e.updatedAt = &t
	return e
}

// wireEntry はキャッシュファイル上の1エントリのJSON表現。
//
//	{"feed_url": str, "discovered_at": ISO8601}
//	{"no_feed": true, "checked_at": ISO8601}
type wireEntry struct {
	FeedURL      string `json:"feed_url,omitempty"`
	DiscoveredAt string `json:"discovered_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	NoFeed       bool   `json:"no_feed,omitempty"`
	CheckedAt    string `json:"checked_at,omitempty"`
}

// MarshalJSON はエントリをキャッシュファイル形式に変換する。
func (e Entry) MarshalJSON() ([]byte, error) {
	var w wireEntry
	switch e.kind {
	case KindResolved:
		w.FeedURL = e.feedURL
		w.DiscoveredAt = formatTime(e.at)
		if e.updatedAt != nil {
			w.UpdatedAt = formatTime(*e.updatedAt)
		}
	case KindNoFeed:
		w.NoFeed = true
		w.CheckedAt = formatTime(e.at)
	default:
		return nil, fmt.Errorf("未初期化のキャッシュエントリはシリアライズできません")
	}
	return json.Marshal(w)
}

// UnmarshalJSON はキャッシュファイル形式からエントリを復元する。
// feed_urlがあればResolved、no_feedが真ならNoFeedとし、どちらでもない場合はエラーを返す。
// 日時が解析できない場合はゼロ値とする。
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch {
	case strings.TrimSpace(w.FeedURL) != "":
		*e = Resolved(w.FeedURL, parseTime(w.DiscoveredAt))
		if w.UpdatedAt != "" {
			*e = e.WithUpdatedAt(parseTime(w.UpdatedAt))
		}
	case w.NoFeed:
		*e = NoFeed(parseTime(w.CheckedAt))
	default:
		return fmt.Errorf("feed_url も no_feed も持たないキャッシュエントリです")
	}
	return nil
}

// timeLayouts はキャッシュファイル上で受け付ける日時形式。
// タイムゾーンなしのISO8601はローカル時刻として扱う。
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
