package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, subscription, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidDomain        = "INVALID_DOMAIN"
	ErrCodeInvalidFeedURL       = "INVALID_FEED_URL"
	ErrCodeInvalidRequestBody   = "INVALID_REQUEST_BODY"
	ErrCodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeRateLimited          = "RATE_LIMITED"
)

// NewInvalidDomainError はドメイン未指定エラーを生成する。
func NewInvalidDomainError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDomain,
		Message:  "ドメインが指定されていません。",
		Category: "validation",
		Action:   "URLパスに購読ドメイン（例: example.com）を指定してください。",
	}
}

// NewInvalidFeedURLError はフィードURL未指定・不正エラーを生成する。
func NewInvalidFeedURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFeedURL,
		Message:  fmt.Sprintf("無効なフィードURLです: %s", reason),
		Category: "validation",
		Action:   "feed_url に RSS/Atom フィードのURLを指定してください。",
	}
}

// NewInvalidRequestBodyError はリクエストボディのパース失敗エラーを生成する。
func NewInvalidRequestBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequestBody,
		Message:  "リクエストボディを解析できませんでした。",
		Category: "validation",
		Action:   "JSON形式のリクエストボディを送信してください。",
	}
}

// NewSubscriptionNotFoundError は購読が見つからない場合のエラーを生成する。
func NewSubscriptionNotFoundError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotFound,
		Message:  fmt.Sprintf("指定された購読が見つかりません: %s", domain),
		Category: "subscription",
		Action:   "購読一覧からドメインを確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// CrawlInputError はクロール結果ファイルが存在しない、またはJSONとして不正な場合のエラー。
// 同期処理で唯一の致命的エラーであり、プロセスは非ゼロで終了する。
type CrawlInputError struct {
	Path string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *CrawlInputError) Error() string {
	return fmt.Sprintf("クロール結果ファイルを読み込めません (%s): %v", e.Path, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *CrawlInputError) Unwrap() error {
	return e.Err
}
