package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// SummaryMaxRunes は記事要約の最大文字数。
const SummaryMaxRunes = 500

// TextExtractor はフィード本文のHTMLからプレーンテキストを取り出す。
// bluemondayのStrictPolicyで全タグを除去し、実体参照を戻して空白を畳む。
// bluemondayのPolicyはgoroutineセーフなので共有してよい。
type TextExtractor struct {
	policy *bluemonday.Policy
}

// NewTextExtractor はTextExtractorを生成する。
func NewTextExtractor() *TextExtractor {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return &TextExtractor{policy: p}
}

// PlainText はHTMLをプレーンテキストに変換し、maxRunes文字で切り詰める。
// maxRunesが0以下の場合は切り詰めない。
func (x *TextExtractor) PlainText(rawHTML string, maxRunes int) string {
	if rawHTML == "" {
		return ""
	}
	// script/styleの中身はStrictPolicyで要素ごと落ちる
	stripped := x.policy.Sanitize(rawHTML)
	text := strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
	return truncateRunes(text, maxRunes)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
