package crawl

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hitoshi/feedsync/internal/model"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://a.com/post/1", "a.com"},
		{"http://WWW.Example.COM/path?q=1", "example.com"},
		{"https://blog.example.com:8443/x", "blog.example.com"},
		{"https://www.a.com", "a.com"},
		{"mailto:someone@example.com", ""},
		{"/relative/path", ""},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeDomain(tt.in); got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestExtractDomains_CollapsesDuplicates は3投稿が a.com, b.com, a.com を参照する場合に
// {a.com, b.com} が得られることを検証する。
func TestExtractDomains_CollapsesDuplicates(t *testing.T) {
	result := &Result{Posts: []Post{
		{URL: "https://a.com/p1"},
		{URL: "https://b.com/p2"},
		{URL: "https://www.a.com/p3"},
	}}

	got := SortedDomains(ExtractDomains(result))
	want := []string{"a.com", "b.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractDomains = %v, want %v", got, want)
	}
}

func TestExtractDomains_IncludesOutboundLinks(t *testing.T) {
	result := &Result{Posts: []Post{
		{
			URL:           "https://news.example.org/item",
			OutboundLinks: []string{"https://c.dev/post", "not a url", "https://d.io"},
		},
		{OutboundLinks: []string{"https://c.dev/another"}},
	}}

	got := SortedDomains(ExtractDomains(result))
	want := []string{"c.dev", "d.io", "news.example.org"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractDomains = %v, want %v", got, want)
	}
}

func TestExtractDomains_OrderIndependent(t *testing.T) {
	a := &Result{Posts: []Post{{URL: "https://x.com/1"}, {URL: "https://y.com/2"}}}
	b := &Result{Posts: []Post{{URL: "https://y.com/2"}, {URL: "https://x.com/1"}}}

	if !reflect.DeepEqual(ExtractDomains(a), ExtractDomains(b)) {
		t.Error("投稿の順序によって抽出結果が変わってはならない")
	}
}

func TestExtractDomains_NilResult(t *testing.T) {
	if got := ExtractDomains(nil); len(got) != 0 {
		t.Errorf("nil入力では空集合を返すべき: %v", got)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.json")
	data := `{"posts":[{"url":"https://a.com/x","outbound_links":["https://b.com/y"]}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := Load(path)
	if err != nil {
		t.Fatalf("Load() がエラーを返した: %v", err)
	}
	if len(result.Posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(result.Posts))
	}
	if result.Posts[0].OutboundLinks[0] != "https://b.com/y" {
		t.Errorf("outbound_links[0] = %q", result.Posts[0].OutboundLinks[0])
	}
}

func TestLoad_MissingFile_ReturnsCrawlInputError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))

	var inputErr *model.CrawlInputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("CrawlInputError を返すべき, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("元のエラー(os.ErrNotExist)をラップすべき: %v", err)
	}
}

func TestLoad_InvalidJSON_ReturnsCrawlInputError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.json")
	if err := os.WriteFile(path, []byte(`{"posts": [`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)

	var inputErr *model.CrawlInputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("CrawlInputError を返すべき, got %v", err)
	}
	if inputErr.Path != path {
		t.Errorf("Path = %q, want %q", inputErr.Path, path)
	}
}
