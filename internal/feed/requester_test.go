package feed

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestRequester_Get_SendsUserAgent(t *testing.T) {
	web := newFakeWeb(t)
	var gotUA string
	web.handleFunc("a.com/", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	})

	resp, err := web.requester().Get(context.Background(), "https://a.com/")
	if err != nil {
		t.Fatalf("Get() がエラーを返した: %v", err)
	}
	if gotUA != testUserAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if !resp.IsSuccess() || resp.ContentType != "text/html; charset=utf-8" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRequester_Get_NonSuccessIsNotError(t *testing.T) {
	web := newFakeWeb(t)

	resp, err := web.requester().Get(context.Background(), "https://a.com/missing")
	if err != nil {
		t.Fatalf("404はエラーにしない: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound || resp.IsSuccess() {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
}

func TestRequester_Get_FollowsRedirect(t *testing.T) {
	web := newFakeWeb(t)
	web.handleFunc("a.com/feed", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://feeds.a.com/main.xml", http.StatusMovedPermanently)
	})
	web.handle("feeds.a.com/main.xml", "application/rss+xml", "<rss/>")

	resp, err := web.requester().Get(context.Background(), "https://a.com/feed")
	if err != nil {
		t.Fatal(err)
	}
	if resp.FinalURL != "https://feeds.a.com/main.xml" {
		t.Errorf("FinalURL = %q", resp.FinalURL)
	}
	if string(resp.Body) != "<rss/>" {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestRequester_Get_LimitsBodySize(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("a.com/big", "text/plain", strings.Repeat("x", 4096))

	r := NewRequester(web.clients(), RequesterConfig{
		Timeout:     5 * time.Second,
		UserAgent:   testUserAgent,
		MaxBodySize: 100,
	})
	resp, err := r.Get(context.Background(), "https://a.com/big")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Body) != 100 {
		t.Errorf("len(Body) = %d, want 100", len(resp.Body))
	}
	if !resp.Truncated {
		t.Error("上限を超えた応答はTruncatedになるべき")
	}
}

// TestRequester_Get_BodyAtLimitIsNotTruncated は上限ちょうどの応答を切り詰めとみなさないことをテストする。
func TestRequester_Get_BodyAtLimitIsNotTruncated(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("a.com/exact", "text/plain", strings.Repeat("x", 100))

	r := NewRequester(web.clients(), RequesterConfig{
		Timeout:     5 * time.Second,
		UserAgent:   testUserAgent,
		MaxBodySize: 100,
	})
	resp, err := r.Get(context.Background(), "https://a.com/exact")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Body) != 100 || resp.Truncated {
		t.Errorf("len(Body) = %d, Truncated = %v", len(resp.Body), resp.Truncated)
	}
}

func TestRequester_Get_CanceledContext(t *testing.T) {
	web := newFakeWeb(t)
	web.handle("a.com/", "text/html", "ok")

	r := NewRequester(web.clients(), RequesterConfig{
		Timeout:       5 * time.Second,
		UserAgent:     testUserAgent,
		RatePerSecond: 0.001,
		RateBurst:     1,
	})
	// バーストを使い切る
	if _, err := r.Get(context.Background(), "https://a.com/"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Get(ctx, "https://a.com/"); err == nil {
		t.Error("キャンセル済みのコンテキストではエラーになるべき")
	}
}

func TestRequester_Get_Timeout(t *testing.T) {
	web := newFakeWeb(t)
	web.handleFunc("slow.com/", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	r := NewRequester(web.clients(), RequesterConfig{
		Timeout:   100 * time.Millisecond,
		UserAgent: testUserAgent,
	})
	if _, err := r.Get(context.Background(), "https://slow.com/"); err == nil {
		t.Error("タイムアウトはエラーになるべき")
	}
}
