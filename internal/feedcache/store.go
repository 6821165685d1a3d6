package feedcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore はキャッシュをJSONファイルとして永続化する。
// 読み込みは丸ごと、書き込みは一時ファイルへの書き出しとrenameによる丸ごと置換で行い、
// 実行途中でクラッシュしてもファイルが壊れないようにする。
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore はFileStoreの新しいインスタンスを生成する。
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path はキャッシュファイルのパスを返す。
func (s *FileStore) Path() string {
	return s.path
}

// Load はキャッシュファイルを読み込む。
// ファイルが存在しない、または不正なJSONの場合は空のキャッシュを返す（エラーにしない）。
func (s *FileStore) Load() (*Cache, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		s.logger.Warn("キャッシュファイルを読み込めないため空として扱います",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return New(), nil
	}

	c, err := decode(data, s.logger)
	if err != nil {
		s.logger.Warn("キャッシュファイルが不正なため空として扱います",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return New(), nil
	}
	return c, nil
}

// Save はキャッシュ全体をファイルに書き戻す。
// 同じディレクトリの一時ファイルに書き出してfsyncした後、renameで置き換える。
func (s *FileStore) Save(c *Cache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("キャッシュのシリアライズに失敗: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".feeds_cache-*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // rename成功後は存在しないため無害

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("一時ファイルへの書き込みに失敗: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("一時ファイルのfsyncに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("一時ファイルの権限設定に失敗: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("キャッシュファイルの置換に失敗: %w", err)
	}
	return nil
}
