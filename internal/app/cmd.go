package app

import (
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandSync はフィード同期を1回実行することを示す。
	CommandSync Command = "sync"
	// CommandServe は管理APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はスケジュールに従って同期を繰り返すワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析し、残りの引数とともに返す。
// 引数が空、フラグで始まる、またはサポート外のコマンドの場合はCommandSyncとし、
// 引数はすべて同期フラグとして扱う。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandSync, nil
	}

	switch args[0] {
	case "sync":
		return CommandSync, args[1:]
	case "worker":
		return CommandWorker, args[1:]
	case "serve":
		return CommandServe, args[1:]
	case "migrate":
		return CommandMigrate, args[1:]
	case "healthcheck":
		return CommandHealthcheck, args[1:]
	default:
		return CommandSync, args
	}
}

// SyncFlags はsyncコマンドのフラグ。
type SyncFlags struct {
	Cron          bool
	SkipDiscovery bool
	Limit         int
	Quiet         bool
}

// Verbose は進捗表示を行うかを返す。cronモードは常に静かに実行する。
func (f SyncFlags) Verbose() bool {
	return !f.Quiet && !f.Cron
}

// ParseSyncFlags はsyncコマンドのフラグを解析する。
// 解析エラーと使い方はstderrに出力する。
func ParseSyncFlags(args []string, stderr io.Writer) (SyncFlags, error) {
	var f SyncFlags

	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&f.Cron, "cron", false, "前回の成功実行以降の記事のみを取得する（差分同期）")
	fs.BoolVar(&f.SkipDiscovery, "skip-discovery", false, "キャッシュ済みのフィードのみを使い、新規探索を行わない")
	fs.IntVarP(&f.Limit, "limit", "n", 0, "処理するドメイン数の上限（0で無制限）")
	fs.BoolVarP(&f.Quiet, "quiet", "q", false, "進捗を表示しない")

	if err := fs.Parse(args); err != nil {
		return SyncFlags{}, fmt.Errorf("syncフラグの解析に失敗: %w", err)
	}
	// 未知のサブコマンドはここに引数として届くため、同期を始めずに拒否する
	if fs.NArg() > 0 {
		return SyncFlags{}, fmt.Errorf("未対応のコマンドまたは引数です: %s", fs.Arg(0))
	}
	if f.Limit < 0 {
		return SyncFlags{}, fmt.Errorf("--limit は0以上を指定してください: %d", f.Limit)
	}
	return f, nil
}

// MigrateAction はmigrateコマンドの操作。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// ParseMigrateAction はmigrateコマンドの引数を解析する。省略時はup。
func ParseMigrateAction(args []string) (MigrateAction, error) {
	if len(args) == 0 {
		return MigrateUp, nil
	}
	switch a := MigrateAction(strings.ToLower(args[0])); a {
	case MigrateUp, MigrateDown, MigrateVersion:
		return a, nil
	default:
		return "", fmt.Errorf("未対応のmigrate操作です: %s (up|down|version)", args[0])
	}
}
