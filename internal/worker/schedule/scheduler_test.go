package schedule

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/feedsync/internal/worker/syncjob"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

type mockRunner struct {
	mu      sync.Mutex
	opts    []syncjob.Options
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *mockRunner) Run(_ context.Context, opts syncjob.Options) (*syncjob.Result, error) {
	m.mu.Lock()
	m.opts = append(m.opts, opts)
	m.mu.Unlock()
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return nil, m.err
	}
	return &syncjob.Result{RunID: "run-1", ItemsWritten: 3}, nil
}

func (m *mockRunner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opts)
}

func TestNew_InvalidSpec(t *testing.T) {
	var buf bytes.Buffer
	if _, err := New("every morning", &mockRunner{}, newTestLogger(&buf)); err == nil {
		t.Error("不正なcron式はエラーになるべき")
	}
}

func TestScheduler_Next(t *testing.T) {
	var buf bytes.Buffer
	s, err := New("0 6 * * *", &mockRunner{}, newTestLogger(&buf))
	if err != nil {
		t.Fatal(err)
	}

	from := time.Date(2026, 3, 1, 7, 0, 0, 0, time.Local)
	want := time.Date(2026, 3, 2, 6, 0, 0, 0, time.Local)
	if got := s.Next(from); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestScheduler_RunOnce_UsesCronMode(t *testing.T) {
	var buf bytes.Buffer
	runner := &mockRunner{}
	s, _ := New("@daily", runner, newTestLogger(&buf))

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.calls() != 1 || !runner.opts[0].Cron {
		t.Errorf("cronモードで実行するべき: %+v", runner.opts)
	}
	if runner.opts[0].Verbose || runner.opts[0].SkipDiscovery {
		t.Errorf("定期同期は詳細出力・探索スキップを使わない: %+v", runner.opts[0])
	}
}

func TestScheduler_RunOnce_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	runner := &mockRunner{err: errors.New("crawl file missing")}
	s, _ := New("@daily", runner, newTestLogger(&buf))

	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("エラーを返すべき")
	}
	if !strings.Contains(buf.String(), "定期同期に失敗しました") {
		t.Errorf("失敗がログに出力されるべき: %s", buf.String())
	}
}

func TestScheduler_SkipsWhileStillRunning(t *testing.T) {
	var buf bytes.Buffer
	runner := &mockRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	s, _ := New("@daily", runner, newTestLogger(&buf))

	done := make(chan struct{})
	go func() {
		s.job.Run()
		close(done)
	}()
	<-runner.started

	// 実行中の呼び出しはスキップされ、即座に戻る
	s.job.Run()
	if runner.calls() != 1 {
		t.Errorf("実行中は次の回をスキップするべき: calls = %d", runner.calls())
	}

	close(runner.release)
	<-done
}

func TestScheduler_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	s, _ := New("@yearly", &mockRunner{}, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("キャンセル後にStartが戻るべき")
	}
}
