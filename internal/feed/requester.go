package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/feedsync/internal/security"
)

// Response は外部サイトからの応答のうち、探索とパースで使う部分。
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	// FinalURL はリダイレクト追従後のURL。
	FinalURL string
	// Truncated はボディが読み取り上限を超え、途中で切り詰められたことを示す。
	Truncated bool
}

// IsSuccess はステータスが2xxかを返す。
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RequesterConfig はRequesterの設定。
type RequesterConfig struct {
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int64
	// RatePerSecond は全リクエスト合計の毎秒上限。0以下で無制限。
	RatePerSecond float64
	RateBurst     int
}

// Requester は探索とフェッチに共通するHTTP GETを行う。
// 全リクエストで同じタイムアウトとUser-Agentを使い、
// 実行全体で共有するレートリミッタで送信間隔を制御する。
type Requester struct {
	client  *http.Client
	cfg     RequesterConfig
	limiter *rate.Limiter
}

// defaultMaxBodySize はMaxBodySize未指定時の読み取り上限（5MB）。
const defaultMaxBodySize = 5 * 1024 * 1024

// NewRequester はRequesterを生成する。
func NewRequester(clients security.ClientFactory, cfg RequesterConfig) *Requester {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Requester{
		client:  clients.NewClient(cfg.Timeout),
		cfg:     cfg,
		limiter: limiter,
	}
}

// Get はURLを取得する。リダイレクトは追従する。
// 2xx以外の応答はエラーにせずそのまま返す。
func (r *Requester) Get(ctx context.Context, rawURL string) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レート制限の待機に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	// 上限を1バイト超えて読み、超過していれば切り詰めたことを記録する
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}
	truncated := int64(len(body)) > r.cfg.MaxBodySize
	if truncated {
		body = body[:r.cfg.MaxBodySize]
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FinalURL:    resp.Request.URL.String(),
		Truncated:   truncated,
	}, nil
}
