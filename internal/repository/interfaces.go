// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feedsync/internal/model"
)

// ArticleHostRef は購読とのホスト照合に使う記事の最小限の情報。
type ArticleHostRef struct {
	ID     string
	URL    string
	Source string
}

// ArticleRepository は記事とキュレーション状態の永続化インターフェース。
type ArticleRepository interface {
	// UpsertArticles は記事を同一トランザクションで保存する。
	// 既存の記事はtitle・summary・topic・fetched_atのみ上書きし、
	// キュレーション状態は存在しない場合のみpendingで作成する。
	// 戻り値は処理した記事数（新規・更新の区別なし）。
	UpsertArticles(ctx context.Context, articles []model.Article) (int, error)

	// CurrentStats は未アーカイブの記事数とキュレーション状態別の件数を返す。
	CurrentStats(ctx context.Context) (*model.ArticleStats, error)

	// ListHostRefs は全記事のID・URL・sourceを返す。
	ListHostRefs(ctx context.Context) ([]ArticleHostRef, error)

	// DeleteByIDs は指定IDの記事とキュレーション状態を削除し、削除件数を返す。
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// CronStateRepository はキー・値形式の実行状態の永続化インターフェース。
type CronStateRepository interface {
	// Get はキーの値を返す。存在しない場合は ok=false を返す。
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set はキーの値を書き込む（存在すれば上書き）。
	Set(ctx context.Context, key, value string, updatedAt time.Time) error
}
