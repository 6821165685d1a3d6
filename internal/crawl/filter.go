package crawl

import "strings"

// nonContentHosts はフィードを持たないSNS・アプリストア等のホスト。
var nonContentHosts = []string{
	"github.com",
	"x.com",
	"twitter.com",
	"youtube.com",
	"apps.apple.com",
	"play.google.com",
	"linkedin.com",
	"facebook.com",
	"instagram.com",
	"tiktok.com",
}

// ExclusionFilter は抽出済みドメイン集合に適用する除外ポリシー。
// 既知の非コンテンツホストと設定された除外ドメインを取り除く。
type ExclusionFilter struct {
	excluded []string
}

// NewExclusionFilter は既定の非コンテンツホストに extra を加えたフィルタを生成する。
func NewExclusionFilter(extra []string) *ExclusionFilter {
	excluded := make([]string, 0, len(nonContentHosts)+len(extra))
	excluded = append(excluded, nonContentHosts...)
	for _, d := range extra {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			excluded = append(excluded, d)
		}
	}
	return &ExclusionFilter{excluded: excluded}
}

// Excludes はドメインが除外対象かを判定する。
// 除外ドメイン自身とそのサブドメインが対象になる。
func (f *ExclusionFilter) Excludes(domain string) bool {
	for _, ex := range f.excluded {
		if domain == ex || strings.HasSuffix(domain, "."+ex) {
			return true
		}
	}
	return false
}

// Apply は除外対象を取り除いたドメインを昇順で返す。
func (f *ExclusionFilter) Apply(domains map[string]struct{}) []string {
	kept := make(map[string]struct{}, len(domains))
	for d := range domains {
		if !f.Excludes(d) {
			kept[d] = struct{}{}
		}
	}
	return SortedDomains(kept)
}
