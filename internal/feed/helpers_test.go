package feed

import (
	"bytes"
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/feedsync/internal/security"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

const testUserAgent = "Mozilla/5.0 (compatible; AINewsletterBot/1.0)"

// fakeWeb はホスト名とパスで応答を切り替えるHTTPSサーバー。
// どのホスト名への接続もこのサーバーに向けるクライアントと組み合わせて使う。
type fakeWeb struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []string
	srv      *httptest.Server
}

func newFakeWeb(t *testing.T) *fakeWeb {
	t.Helper()
	w := &fakeWeb{routes: make(map[string]http.HandlerFunc)}
	w.srv = httptest.NewTLSServer(http.HandlerFunc(w.serve))
	t.Cleanup(w.srv.Close)
	return w
}

func (w *fakeWeb) serve(rw http.ResponseWriter, r *http.Request) {
	key := r.Host + r.URL.Path
	w.mu.Lock()
	w.requests = append(w.requests, key)
	h, ok := w.routes[key]
	w.mu.Unlock()
	if !ok {
		http.NotFound(rw, r)
		return
	}
	h(rw, r)
}

// handle は "host/path" に応答を登録する。
func (w *fakeWeb) handle(hostPath, contentType, body string) {
	w.handleFunc(hostPath, func(rw http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			rw.Header().Set("Content-Type", contentType)
		}
		rw.Write([]byte(body))
	})
}

func (w *fakeWeb) handleFunc(hostPath string, h http.HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.routes[hostPath] = h
}

func (w *fakeWeb) requestLog() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.requests...)
}

// clients は全ての接続をテストサーバーへ向けるClientFactoryを返す。
func (w *fakeWeb) clients() security.ClientFactory {
	addr := w.srv.Listener.Addr().String()
	return security.ClientFactoryFunc(func(timeout time.Duration) *http.Client {
		dialer := &net.Dialer{Timeout: timeout}
		return &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, network, addr)
				},
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	})
}

func (w *fakeWeb) requester() *Requester {
	return NewRequester(w.clients(), RequesterConfig{
		Timeout:     5 * time.Second,
		UserAgent:   testUserAgent,
		MaxBodySize: 1 << 20,
	})
}
