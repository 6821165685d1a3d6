package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresCronStateRepo はPostgreSQLを使用した実行状態リポジトリ。
type PostgresCronStateRepo struct {
	db *sql.DB
}

// NewPostgresCronStateRepo はPostgresCronStateRepoを生成する。
func NewPostgresCronStateRepo(db *sql.DB) *PostgresCronStateRepo {
	return &PostgresCronStateRepo{db: db}
}

// Get はキーの値を返す。存在しない場合は ok=false を返す。
func (r *PostgresCronStateRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM cron_state WHERE key = $1`,
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("実行状態の取得に失敗しました (key=%s): %w", key, err)
	}
	return value, true, nil
}

// Set はキーの値を書き込む。
func (r *PostgresCronStateRepo) Set(ctx context.Context, key, value string, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cron_state (key, value, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET
		     value      = EXCLUDED.value,
		     updated_at = EXCLUDED.updated_at`,
		key, value, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("実行状態の保存に失敗しました (key=%s): %w", key, err)
	}
	return nil
}
