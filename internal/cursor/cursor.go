// Package cursor は定期同期（cronモード）の差分取得の起点を管理する。
//
// カーソルは最後に成功した定期同期の開始時刻で、cron_stateテーブルの
// last_run キーに保存される。手動同期はカーソルを読み書きしない。
package cursor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/feedsync/internal/repository"
)

// Key はcron_stateでカーソルを保存するキー。
const Key = "last_run"

// legacyLayouts はタイムゾーンなしで保存された既存の値の形式。ローカル時刻として扱う。
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Store はカーソルの読み書きを行う。
type Store struct {
	repo   repository.CronStateRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(repo repository.CronStateRepository, logger *slog.Logger) *Store {
	return &Store{repo: repo, logger: logger, now: time.Now}
}

// LastRun は保存済みのカーソルを返す。未保存または解釈できない場合はnil。
// 解釈できない値は初回実行と同じ扱いになる。
func (s *Store) LastRun(ctx context.Context) (*time.Time, error) {
	value, ok, err := s.repo.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("カーソルの取得に失敗: %w", err)
	}
	if !ok || strings.TrimSpace(value) == "" {
		return nil, nil
	}

	t, err := parse(value)
	if err != nil {
		s.logger.Warn("カーソルを解釈できないため初回実行として扱います",
			slog.String("value", value),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return &t, nil
}

// Advance はカーソルをtまで進める。
// 保存済みのカーソルより前の時刻では後退させず、現在値を保つ。
func (s *Store) Advance(ctx context.Context, t time.Time) error {
	prev, err := s.LastRun(ctx)
	if err != nil {
		return err
	}
	if prev != nil && t.Before(*prev) {
		s.logger.Warn("カーソルを後退させないため現在値を維持します",
			slog.Time("current", *prev),
			slog.Time("requested", t),
		)
		t = *prev
	}

	value := t.UTC().Format(time.RFC3339Nano)
	if err := s.repo.Set(ctx, Key, value, s.now()); err != nil {
		return fmt.Errorf("カーソルの保存に失敗: %w", err)
	}
	return nil
}

func parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("未対応の日時形式です: %q", value)
}
