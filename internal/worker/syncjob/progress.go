package syncjob

import (
	"fmt"
	"io"
	"sync"
)

// Progress は詳細モードで人向けの進捗を1行ずつ出力する。
// 無効な場合は何も出力しない。並列のフェッチから呼ばれても行が混ざらない。
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
}

func newProgress(w io.Writer, enabled bool) *Progress {
	return &Progress{w: w, enabled: enabled}
}

// Printf は1行出力する。
func (p *Progress) Printf(format string, args ...any) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}
