// Package schedule はcron式に従ってcronモードの同期を繰り返し実行する。
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/feedsync/internal/worker/syncjob"
)

// Runner は同期ジョブの実行インターフェース。
type Runner interface {
	Run(ctx context.Context, opts syncjob.Options) (*syncjob.Result, error)
}

// Scheduler はcron式のスケジュールで同期を起動する。
// 前回の実行が終わっていない場合、その回はスキップする。
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	runner   Runner
	logger   *slog.Logger
	job      cron.Job
	ctx      context.Context
}

// New はSchedulerを生成する。specは5フィールドのcron式または@daily等の記述子。
func New(spec string, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("cron式の解析に失敗 (%s): %w", spec, err)
	}

	s := &Scheduler{
		spec:     spec,
		schedule: schedule,
		runner:   runner,
		logger:   logger,
		ctx:      context.Background(),
	}
	cl := cronLogger{logger: logger}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		_ = s.RunOnce(s.ctx)
	}))
	return s, nil
}

// Next はfrom以降の次回実行時刻を返す。
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Start はスケジューラを起動し、ctxがキャンセルされるまでブロックする。
// 停止時は実行中の同期の終了を待つ。
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	c := cron.New()
	c.Schedule(s.schedule, s.job)
	c.Start()

	s.logger.Info("同期スケジューラを開始しました",
		slog.String("schedule", s.spec),
		slog.Time("next_run", s.Next(time.Now())),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("同期スケジューラを停止しました")
}

// RunOnce はcronモードの同期を1回実行する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	res, err := s.runner.Run(ctx, syncjob.Options{Cron: true})
	if err != nil {
		s.logger.Error("定期同期に失敗しました", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("定期同期が完了しました",
		slog.String("run_id", res.RunID),
		slog.Int("items_written", res.ItemsWritten),
		slog.Time("next_run", s.Next(time.Now())),
	)
	return nil
}

// cronLogger はcronのログをslogに流す。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err.Error())...)
}
