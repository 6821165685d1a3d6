package feed

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/security"
)

// DefaultMaxItems はフィード1件あたりに処理するエントリ数の既定値。
const DefaultMaxItems = 50

// untitled はタイトルのないエントリに付けるタイトル。
const untitled = "Untitled"

// Parser はフィードを取得し、カットオフ以降のエントリをFeedItemに変換する。
type Parser struct {
	getter   Getter
	text     *security.TextExtractor
	logger   *slog.Logger
	metrics  metrics.Recorder
	maxItems int
}

// NewParser はParserを生成する。maxItemsが0以下の場合はDefaultMaxItemsを使う。
func NewParser(getter Getter, text *security.TextExtractor, logger *slog.Logger, recorder metrics.Recorder, maxItems int) *Parser {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Parser{
		getter:   getter,
		text:     text,
		logger:   logger,
		metrics:  metrics.OrNop(recorder),
		maxItems: maxItems,
	}
}

// Parse はフィードを取得してパースし、cutoff以降のエントリを返す。
// 取得やパースに失敗した場合はログを出して空を返す。1件の失敗で同期全体を止めないため。
// 途中で壊れた文書は、閉じタグまで揃ったエントリだけを取り出して使う。
// 日時を持たないエントリは常に含める。出力順はフィード内の順序のまま。
func (p *Parser) Parse(ctx context.Context, feedURL string, cutoff time.Time) []model.FeedItem {
	start := time.Now()

	resp, err := p.getter.Get(ctx, feedURL)
	if err != nil {
		p.metrics.RecordFetchFailure(metrics.FailureRequest)
		p.logger.Warn("フィードの取得に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil
	}
	p.metrics.RecordHTTPStatus(resp.StatusCode)
	p.metrics.RecordFetchLatency(time.Since(start))

	if !resp.IsSuccess() {
		p.metrics.RecordFetchFailure(metrics.FailureStatus)
		p.logger.Warn("フィードの取得に失敗しました",
			slog.String("feed_url", feedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.String("status_class", string(ClassifyHTTPStatus(resp.StatusCode))),
		)
		return nil
	}

	if resp.Truncated {
		p.logger.Warn("フィードが読み取り上限を超えたため切り詰めました",
			slog.String("feed_url", feedURL),
			slog.String("failure", metrics.FailureTruncated),
			slog.Int("bytes", len(resp.Body)),
		)
	}

	// 文書が途中で壊れていても、完結したエントリがあればそれだけを使う。
	// エントリを1件も取り出せない場合のみフィードを失敗として扱う。
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		recovered, ok := salvageFeed(resp.Body)
		if !ok {
			reason := metrics.FailureParse
			if resp.Truncated {
				reason = metrics.FailureTruncated
			}
			p.metrics.RecordFetchFailure(reason)
			p.logger.Warn("フィードのパースに失敗しました",
				slog.String("feed_url", feedURL),
				slog.String("failure", reason),
				slog.String("error", err.Error()),
			)
			return nil
		}
		p.logger.Warn("フィードが壊れているため、読み取れたエントリのみ使用します",
			slog.String("feed_url", feedURL),
			slog.Int("entries", len(recovered.Items)),
			slog.String("error", err.Error()),
		)
		parsed = recovered
	}
	p.metrics.RecordFetchSuccess()
	if len(parsed.Items) == 0 {
		return nil
	}

	source := hostOf(feedURL)
	entries := parsed.Items
	if len(entries) > p.maxItems {
		entries = entries[:p.maxItems]
	}

	items := make([]model.FeedItem, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		published := entryTime(entry)
		if published != nil && published.Before(cutoff) {
			continue
		}
		items = append(items, model.FeedItem{
			Title:     entryTitle(entry),
			URL:       entryLink(entry),
			Summary:   p.summary(entry),
			Published: published,
			Source:    source,
		})
	}

	p.metrics.RecordItemsParsed(len(items))
	p.logger.Info("フィードをパースしました",
		slog.String("feed_url", feedURL),
		slog.Int("entries", len(entries)),
		slog.Int("items", len(items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return items
}

// entryTime は公開日時・更新日時・作成日時の順に、最初に解釈できた日時を返す。
func entryTime(item *gofeed.Item) *time.Time {
	candidates := []struct {
		parsed *time.Time
		raw    string
	}{
		{item.PublishedParsed, item.Published},
		{item.UpdatedParsed, item.Updated},
		{nil, createdRaw(item)},
	}
	for _, c := range candidates {
		if c.parsed != nil && !c.parsed.IsZero() {
			t := *c.parsed
			return &t
		}
		if raw := strings.TrimSpace(c.raw); raw != "" {
			if t, err := dateparse.ParseAny(raw); err == nil {
				return &t
			}
		}
	}
	return nil
}

// createdRaw はdcterms:created（またはdc:created）拡張要素の値を返す。
func createdRaw(item *gofeed.Item) string {
	for _, prefix := range []string{"dcterms", "dc"} {
		if exts, ok := item.Extensions[prefix]["created"]; ok && len(exts) > 0 {
			return exts[0].Value
		}
	}
	return ""
}

func entryTitle(item *gofeed.Item) string {
	if t := strings.TrimSpace(item.Title); t != "" {
		return t
	}
	return untitled
}

// entryLink はエントリのURLを返す。linkがなくGUIDがURL形式の場合はGUIDを使う。
func entryLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	guid := strings.TrimSpace(item.GUID)
	if strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}

// summary は要約（description/summary）、本文の順に最初の空でないものをテキスト化する。
func (p *Parser) summary(item *gofeed.Item) string {
	for _, raw := range []string{item.Description, item.Content} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		return p.text.PlainText(raw, security.SummaryMaxRunes)
	}
	return ""
}

// hostOf はURLのホスト部（ポートを含む）を返す。
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
