// Package security は外部サイトへアクセスする際の安全対策を提供する。
//
// クロール結果に含まれるドメインは任意の第三者サイトであるため、
// フィード探索とフェッチはSSRF防止付きのHTTPクライアントで行う。
// フィード本文のHTMLはプレーンテキストに変換してから保存する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ClientFactory は外部サイト向けHTTPクライアントの生成を抽象化する。
// テストではhttptestサーバーへ到達できるクライアントに差し替える。
type ClientFactory interface {
	NewClient(timeout time.Duration) *http.Client
}

// ClientFactoryFunc は関数をClientFactoryとして扱うアダプタ。
type ClientFactoryFunc func(timeout time.Duration) *http.Client

// NewClient はfを呼び出す。
func (f ClientFactoryFunc) NewClient(timeout time.Duration) *http.Client {
	return f(timeout)
}

// allowedSchemes はフィード探索・取得で許可するURLスキーム。
var allowedSchemes = []string{"http", "https"}

// SafeClientFactory はsafeurlによるSSRF防止付きクライアントを生成する。
// DialerのControlフックで名前解決後のIPを検証するため、
// プライベート・ループバック・リンクローカル宛ての接続は確立前に拒否される。
type SafeClientFactory struct{}

// NewSafeClientFactory はSafeClientFactoryを生成する。
func NewSafeClientFactory() *SafeClientFactory {
	return &SafeClientFactory{}
}

// NewClient はSSRF防止付きのHTTPクライアントを生成する。
func (SafeClientFactory) NewClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// PlainClientFactory は保護なしの標準クライアントを生成する。
// FETCH_SSRF_PROTECTION=false の場合にのみ使用する。
type PlainClientFactory struct{}

// NewClient はタイムアウトのみ設定した標準クライアントを生成する。
func (PlainClientFactory) NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewClientFactory は設定に応じてClientFactoryを選択する。
func NewClientFactory(ssrfProtection bool) ClientFactory {
	if ssrfProtection {
		return NewSafeClientFactory()
	}
	return PlainClientFactory{}
}

// blockedPrefixes は事前検証で拒否するアドレス範囲。
var blockedPrefixes = mustPrefixes(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// ValidateFeedURL は購読管理で手動設定されるフィードURLを静的に検証する。
// 名前解決は行わないため、DNS再バインディングはSafeClientFactory側で防ぐ。
func ValidateFeedURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("URLが空です")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URLの解析に失敗: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("許可されていないスキームです: %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("ホストがありません: %s", rawURL)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("ブロック対象のホストです: %s", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("ブロック対象のIPアドレスです: %s", addr)
			}
		}
	}
	return nil
}
