package logger

import (
	"io"
	"log/slog"
	"os"
)

// LevelFor は出力モードに応じたログレベルを返す。
// 詳細モードではInfo、quiet/cronモードではErrorとし、
// ドメイン単位・フィード単位の回復可能な失敗（Warn）を抑制する。
func LevelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelInfo
	}
	return slog.LevelError
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stderrに出力する。
// 標準出力は詳細モードの進捗表示に使うため、ログは標準エラーに分離する。
func SetupDefault(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := Setup(w, level)
	slog.SetDefault(logger)
	return logger
}
