package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/feedsync/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

const upsertArticleSQL = `
INSERT INTO articles (id, url, title, summary, source, published, topic, fetched_at, week)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    title      = EXCLUDED.title,
    summary    = EXCLUDED.summary,
    topic      = EXCLUDED.topic,
    fetched_at = EXCLUDED.fetched_at`

const insertCurationSQL = `
INSERT INTO curation (article_id, status, curated_at)
VALUES ($1, 'pending', $2)
ON CONFLICT (article_id) DO NOTHING`

// UpsertArticles は記事を同一トランザクションで保存する。
// 途中で失敗した場合は全件ロールバックされる。
func (r *PostgresArticleRepo) UpsertArticles(ctx context.Context, articles []model.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	articleStmt, err := tx.PrepareContext(ctx, upsertArticleSQL)
	if err != nil {
		return 0, fmt.Errorf("記事UPSERT文の準備に失敗しました: %w", err)
	}
	defer articleStmt.Close()

	curationStmt, err := tx.PrepareContext(ctx, insertCurationSQL)
	if err != nil {
		return 0, fmt.Errorf("キュレーション作成文の準備に失敗しました: %w", err)
	}
	defer curationStmt.Close()

	for _, a := range articles {
		if _, err := articleStmt.ExecContext(ctx,
			a.ID, a.URL, a.Title, a.Summary, a.Source,
			nullTime(a.Published), a.Topic, a.FetchedAt, a.Week,
		); err != nil {
			return 0, fmt.Errorf("記事の保存に失敗しました (url=%s): %w", a.URL, err)
		}
		if _, err := curationStmt.ExecContext(ctx, a.ID, a.FetchedAt); err != nil {
			return 0, fmt.Errorf("キュレーション状態の作成に失敗しました (id=%s): %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return len(articles), nil
}

// CurrentStats は未アーカイブの記事数とキュレーション状態別の件数を返す。
func (r *PostgresArticleRepo) CurrentStats(ctx context.Context) (*model.ArticleStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*)
		 FROM curation
		 WHERE archived = FALSE
		 GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("記事集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	stats := &model.ArticleStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("記事集計の読み取りに失敗しました: %w", err)
		}
		stats.Total += count
		switch model.CurationStatus(status) {
		case model.CurationStatusPending:
			stats.Pending = count
		case model.CurationStatusShortlisted:
			stats.Shortlisted = count
		case model.CurationStatusRejected:
			stats.Rejected = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事集計の読み取りに失敗しました: %w", err)
	}
	return stats, nil
}

// ListHostRefs は全記事のID・URL・sourceを返す。
func (r *PostgresArticleRepo) ListHostRefs(ctx context.Context) ([]ArticleHostRef, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, url, source FROM articles`)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var refs []ArticleHostRef
	for rows.Next() {
		var ref ArticleHostRef
		var source sql.NullString
		if err := rows.Scan(&ref.ID, &ref.URL, &source); err != nil {
			return nil, fmt.Errorf("記事一覧の読み取りに失敗しました: %w", err)
		}
		if source.Valid {
			ref.Source = source.String
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の読み取りに失敗しました: %w", err)
	}
	return refs, nil
}

// DeleteByIDs は指定IDの記事を削除する。キュレーション状態はCASCADEで削除される。
func (r *PostgresArticleRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM articles WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return int(n), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
