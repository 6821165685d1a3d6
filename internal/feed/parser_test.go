package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/security"
)

var testCutoff = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func newTestParser(web *fakeWeb, maxItems int) (*Parser, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewParser(web.requester(), security.NewTextExtractor(), newTestLogger(&buf), nil, maxItems), &buf
}

const cutoffRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Blog</title>
<item><title>Newer</title><link>https://a.com/newer</link><pubDate>Sat, 11 Jan 2025 09:00:00 GMT</pubDate>
<description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description></item>
<item><title>Older</title><link>https://a.com/older</link><pubDate>Thu, 09 Jan 2025 09:00:00 GMT</pubDate></item>
<item><title>Boundary</title><link>https://a.com/boundary</link><pubDate>Fri, 10 Jan 2025 00:00:00 GMT</pubDate></item>
<item><title>Undated</title><link>https://a.com/undated</link></item>
</channel></rss>`

// TestParse_CutoffAndFailOpen はカットオフより古い記事のみ除外し、日時なしは含めることをテストする。
func TestParse_CutoffAndFailOpen(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("a.com/feed", "application/rss+xml", cutoffRSS)
	p, _ := newTestParser(web, 50)

	items := p.Parse(context.Background(), "https://a.com/feed", testCutoff)

	var urls []string
	for _, it := range items {
		urls = append(urls, it.URL)
	}
	want := []string{"https://a.com/newer", "https://a.com/boundary", "https://a.com/undated"}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Fatalf("URLs = %v, want %v", urls, want)
	}

	if items[0].Published == nil || !items[0].Published.Equal(time.Date(2025, 1, 11, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Published = %v", items[0].Published)
	}
	if items[0].Summary != "Hello world" {
		t.Errorf("Summary = %q", items[0].Summary)
	}
	if items[2].Published != nil {
		t.Errorf("日時なしの記事の Published は nil: %v", items[2].Published)
	}
	for _, it := range items {
		if it.Source != "a.com" {
			t.Errorf("Source = %q, want a.com", it.Source)
		}
	}
}

// TestParse_SourceIsFeedHost はsourceが探索ドメインではなくフィードURLのホストになることをテストする。
func TestParse_SourceIsFeedHost(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("feeds.example.net/a", "application/rss+xml", cutoffRSS)
	p, _ := newTestParser(web, 50)

	items := p.Parse(context.Background(), "https://feeds.example.net/a", testCutoff)
	if len(items) == 0 || items[0].Source != "feeds.example.net" {
		t.Errorf("items = %+v", items)
	}
}

// TestParse_AtomUpdatedAndContent はAtomのupdated日時と本文からの要約抽出をテストする。
func TestParse_AtomUpdatedAndContent(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("b.com/atom.xml", "application/atom+xml", `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>B</title>
<entry><title></title><link href="https://b.com/post"/><id>urn:uuid:1</id>
<updated>2025-01-12T00:00:00Z</updated>
<content type="html">&lt;div&gt;Body &amp;amp; more&lt;/div&gt;</content></entry>
<entry><title>Old</title><link href="https://b.com/old"/><id>urn:uuid:2</id>
<updated>2024-12-01T00:00:00Z</updated></entry>
</feed>`)
	p, _ := newTestParser(web, 50)

	items := p.Parse(context.Background(), "https://b.com/atom.xml", testCutoff)
	if len(items) != 1 {
		t.Fatalf("len = %d, want 1: %+v", len(items), items)
	}
	it := items[0]
	if it.Title != "Untitled" {
		t.Errorf("Title = %q, want Untitled", it.Title)
	}
	if it.URL != "https://b.com/post" {
		t.Errorf("URL = %q", it.URL)
	}
	if it.Summary != "Body & more" {
		t.Errorf("Summary = %q", it.Summary)
	}
	if it.Published == nil || !it.Published.Equal(time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Published = %v", it.Published)
	}
}

// TestParse_CreatedExtension はdcterms:createdを最後の日時候補として使うことをテストする。
func TestParse_CreatedExtension(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("c.com/rss", "application/rss+xml", `<?xml version="1.0"?>
<rss version="2.0" xmlns:dcterms="http://purl.org/dc/terms/"><channel><title>C</title>
<item><title>Old</title><link>https://c.com/old</link><dcterms:created>2024-06-01T00:00:00Z</dcterms:created></item>
<item><title>New</title><link>https://c.com/new</link><dcterms:created>2025-02-01T00:00:00Z</dcterms:created></item>
</channel></rss>`)
	p, _ := newTestParser(web, 50)

	items := p.Parse(context.Background(), "https://c.com/rss", testCutoff)
	if len(items) != 1 || items[0].URL != "https://c.com/new" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Published == nil || items[0].Published.Year() != 2025 {
		t.Errorf("Published = %v", items[0].Published)
	}
}

// TestParse_GUIDLinkFallback はlinkがない場合にURL形式のGUIDを使うことをテストする。
func TestParse_GUIDLinkFallback(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("d.com/rss", "application/rss+xml", `<?xml version="1.0"?>
<rss version="2.0"><channel><title>D</title>
<item><title>Permalink</title><guid isPermaLink="true">https://d.com/p/1</guid></item>
<item><title>Opaque</title><guid isPermaLink="false">tag:d.com,2025:2</guid></item>
</channel></rss>`)
	p, _ := newTestParser(web, 50)

	items := p.Parse(context.Background(), "https://d.com/rss", testCutoff)
	if len(items) != 2 {
		t.Fatalf("len = %d", len(items))
	}
	if items[0].URL != "https://d.com/p/1" {
		t.Errorf("URL = %q", items[0].URL)
	}
	if items[1].URL != "" {
		t.Errorf("URL形式でないGUIDは使わない: %q", items[1].URL)
	}
}

// TestParse_MaxItems はフィード先頭から最大件数までしか処理しないことをテストする。
func TestParse_MaxItems(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>E</title>`)
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, `<item><title>%d</title><link>https://e.com/%d</link></item>`, i, i)
	}
	b.WriteString(`</channel></rss>`)

	web := newFakeWeb(t)
	web.handle("e.com/rss", "application/rss+xml", b.String())
	p, _ := newTestParser(web, 50)

	items := p.Parse(context.Background(), "https://e.com/rss", testCutoff)
	if len(items) != 50 {
		t.Fatalf("len = %d, want 50", len(items))
	}
	if items[0].URL != "https://e.com/0" || items[49].URL != "https://e.com/49" {
		t.Errorf("フィード内の順序を保つべき: first=%q last=%q", items[0].URL, items[49].URL)
	}
}

// TestParse_SummaryTruncated は要約を500文字で切り詰めることをテストする。
func TestParse_SummaryTruncated(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("f.com/rss", "application/rss+xml", `<?xml version="1.0"?>
<rss version="2.0"><channel><title>F</title>
<item><title>Long</title><link>https://f.com/1</link><description>`+strings.Repeat("word ", 200)+`</description></item>
</channel></rss>`)
	p, _ := newTestParser(web, 50)

	items := p.Parse(context.Background(), "https://f.com/rss", testCutoff)
	if len(items) != 1 || len([]rune(items[0].Summary)) != 500 {
		t.Errorf("要約は500文字であるべき: %d", len([]rune(items[0].Summary)))
	}
}

// TestParse_Failures は取得・パースの失敗で空を返すことをテストする。
func TestParse_Failures(t *testing.T) {
	web := newFakeWeb(t)
	web.handleFunc("g.com/500", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	web.handle("g.com/html", "text/html", "<html><body>not a feed</body></html>")
	web.handle("g.com/empty", "application/rss+xml", `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title></channel></rss>`)

	tests := []struct {
		name string
		url  string
	}{
		{"5xx", "https://g.com/500"},
		{"404", "https://g.com/missing"},
		{"フィードでない", "https://g.com/html"},
		{"エントリなし", "https://g.com/empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, buf := newTestParser(web, 50)
			if items := p.Parse(context.Background(), tt.url, testCutoff); len(items) != 0 {
				t.Errorf("空であるべき: %+v", items)
			}
			if tt.name != "エントリなし" && !strings.Contains(buf.String(), tt.url) {
				t.Errorf("失敗はログに残すべき: %s", buf.String())
			}
		})
	}
}

// failureRecorder はフェッチ失敗の理由だけを記録する。
type failureRecorder struct {
	metrics.Nop
	reasons []string
}

func (r *failureRecorder) RecordFetchFailure(reason string) {
	r.reasons = append(r.reasons, reason)
}

const brokenRSSHead = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>H</title>
<item><title>First</title><link>https://h.com/1</link></item>
<item><title>Second</title><link>https://h.com/2</link></item>
`

// TestParse_BrokenFeedKeepsCompleteEntries は途中で切れた文書から完結したエントリだけを取り出すことをテストする。
func TestParse_BrokenFeedKeepsCompleteEntries(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("h.com/rss", "application/rss+xml", brokenRSSHead+`<item><title>Thi`)
	web.handle("h.com/atom", "application/atom+xml", `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>H</title>
<entry><title>One</title><link href="https://h.com/a1"/><id>urn:h:1</id></entry>
<entry><title>Two</title><link href="https://h.com/a2"/><id>urn:h:2</id></entry>
<entry><title>Thr`)

	tests := []struct {
		name string
		url  string
		want []string
	}{
		{"RSS", "https://h.com/rss", []string{"https://h.com/1", "https://h.com/2"}},
		{"Atom", "https://h.com/atom", []string{"https://h.com/a1", "https://h.com/a2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, buf := newTestParser(web, 50)
			items := p.Parse(context.Background(), tt.url, testCutoff)

			var urls []string
			for _, it := range items {
				urls = append(urls, it.URL)
			}
			if strings.Join(urls, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("URLs = %v, want %v", urls, tt.want)
			}
			if !strings.Contains(buf.String(), "読み取れたエントリのみ") {
				t.Errorf("壊れたフィードはログに残すべき: %s", buf.String())
			}
		})
	}
}

// TestParse_TruncatedBody は読み取り上限で切り詰めた応答を専用の失敗理由で記録し、
// 上限内に収まったエントリは使うことをテストする。
func TestParse_TruncatedBody(t *testing.T) {
	web := newFakeWeb(t)
	body := brokenRSSHead + `<item><title>Third</title><link>https://h.com/3</link></item></channel></rss>`
	web.handle("h.com/big", "application/rss+xml", body)
	web.handle("h.com/tiny", "application/rss+xml", body)

	newParser := func(limit int) (*Parser, *failureRecorder, *bytes.Buffer) {
		var buf bytes.Buffer
		rec := &failureRecorder{}
		r := NewRequester(web.clients(), RequesterConfig{
			Timeout:     5 * time.Second,
			UserAgent:   testUserAgent,
			MaxBodySize: int64(limit),
		})
		return NewParser(r, security.NewTextExtractor(), newTestLogger(&buf), rec, 50), rec, &buf
	}

	// 3件目の途中で切れる
	p, rec, buf := newParser(len(brokenRSSHead) + 20)
	items := p.Parse(context.Background(), "https://h.com/big", testCutoff)
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	if !strings.Contains(buf.String(), `"failure":"truncated"`) {
		t.Errorf("切り詰めはログに残すべき: %s", buf.String())
	}
	if len(rec.reasons) != 0 {
		t.Errorf("エントリを取り出せた場合は失敗を記録しない: %v", rec.reasons)
	}

	// 1件目の途中で切れる
	p, rec, _ = newParser(len(`<?xml version="1.0"?>`) + 30)
	if items := p.Parse(context.Background(), "https://h.com/tiny", testCutoff); len(items) != 0 {
		t.Fatalf("空であるべき: %+v", items)
	}
	if len(rec.reasons) != 1 || rec.reasons[0] != metrics.FailureTruncated {
		t.Errorf("reasons = %v, want [%s]", rec.reasons, metrics.FailureTruncated)
	}
}
