// Package crawl はクロール結果からの候補ドメイン抽出を提供する。
package crawl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/hitoshi/feedsync/internal/model"
)

// Post はクロール結果の1投稿を表す。
type Post struct {
	URL           string   `json:"url"`
	OutboundLinks []string `json:"outbound_links"`
}

// Result はクロール結果ファイル全体を表す。
type Result struct {
	Posts []Post `json:"posts"`
}

// Load はクロール結果ファイルを読み込む。
// ファイルが存在しない、またはJSONとして不正な場合は*model.CrawlInputErrorを返す。
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.CrawlInputError{Path: path, Err: err}
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &model.CrawlInputError{Path: path, Err: fmt.Errorf("JSONの解析に失敗: %w", err)}
	}

	return &result, nil
}

// ExtractDomains は投稿URLと外部リンクから正規化済みドメインの集合を抽出する。
// 副作用のない純粋関数で、入力順序に依存しない。
func ExtractDomains(result *Result) map[string]struct{} {
	domains := make(map[string]struct{})
	if result == nil {
		return domains
	}

	add := func(rawURL string) {
		if d := NormalizeDomain(rawURL); d != "" {
			domains[d] = struct{}{}
		}
	}

	for _, post := range result.Posts {
		add(post.URL)
		for _, link := range post.OutboundLinks {
			add(link)
		}
	}

	return domains
}

// NormalizeDomain はURLからドメインを取り出して正規化する。
// スキーム・パス・ポートを除去し、小文字化して先頭の "www." を取り除く。
// ホストを持たないURLの場合は空文字列を返す。
func NormalizeDomain(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	return host
}

// SortedDomains はドメイン集合を昇順のスライスで返す。
func SortedDomains(domains map[string]struct{}) []string {
	out := make([]string, 0, len(domains))
	for d := range domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
