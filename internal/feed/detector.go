// Package feed はドメインのフィード探索と、フィードの取得・パースを提供する。
package feed

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// feedLinkTypeTokens はlink要素のtype属性でフィードとみなす部分文字列。
var feedLinkTypeTokens = []string{"rss", "atom", "xml"}

// ParseFeedLinksFromHTML はHTML中の rel="alternate" なフィードリンクを文書順に返す。
// headに限らず文書全体を走査する。相対URLはbaseURLを基準に解決する。
func ParseFeedLinksFromHTML(htmlBody []byte, baseURL string) []string {
	var links []string

	base, err := url.Parse(baseURL)
	if err != nil {
		return links
	}

	z := html.NewTokenizer(bytes.NewReader(htmlBody))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = string(val)
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = strings.TrimSpace(string(val))
				}
			}

			if href == "" || !hasRelToken(rel, "alternate") || !isFeedLinkType(linkType) {
				continue
			}
			if resolved := resolveURL(base, href); resolved != "" {
				links = append(links, resolved)
			}
		}
	}
}

// hasRelToken はrel属性（空白区切りのトークン列）にtokenが含まれるかを返す。
func hasRelToken(rel, token string) bool {
	for _, t := range strings.Fields(rel) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func isFeedLinkType(linkType string) bool {
	for _, tok := range feedLinkTypeTokens {
		if strings.Contains(linkType, tok) {
			return true
		}
	}
	return false
}

// resolveURL は相対URLをベースURLを基準に絶対URLに解決する。
func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// feedContentTypeTokens と feedBodyMarkers はパターン探索の応答をフィードとみなす条件。
var (
	feedContentTypeTokens = []string{"xml", "rss", "atom"}
	feedBodyMarkers       = []string{"<rss", "<feed", "<atom", "<?xml"}
)

// sniffLength はボディ判定で見る先頭の文字数。
const sniffLength = 500

// LooksLikeFeed はContent-Typeまたはボディ先頭500文字からフィードらしさを判定する。
func LooksLikeFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	for _, tok := range feedContentTypeTokens {
		if strings.Contains(ct, tok) {
			return true
		}
	}

	head := strings.ToLower(firstRunes(body, sniffLength))
	for _, m := range feedBodyMarkers {
		if strings.Contains(head, m) {
			return true
		}
	}
	return false
}

func firstRunes(b []byte, n int) string {
	i := 0
	for pos := 0; pos < len(b); i++ {
		if i == n {
			return string(b[:pos])
		}
		_, size := utf8.DecodeRune(b[pos:])
		pos += size
	}
	return string(b)
}

// StatusClass はHTTPステータスコードのログ・メトリクス用の分類。
type StatusClass string

const (
	StatusOK          StatusClass = "ok"
	StatusNotFound    StatusClass = "not_found"
	StatusForbidden   StatusClass = "forbidden"
	StatusRateLimited StatusClass = "rate_limited"
	StatusServerError StatusClass = "server_error"
	StatusOther       StatusClass = "other"
)

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusOK
	case statusCode == 404 || statusCode == 410:
		return StatusNotFound
	case statusCode == 401 || statusCode == 403:
		return StatusForbidden
	case statusCode == 429:
		return StatusRateLimited
	case statusCode >= 500:
		return StatusServerError
	default:
		return StatusOther
	}
}
