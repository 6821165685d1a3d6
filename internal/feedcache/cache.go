package feedcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Cache はドメインをキーとする探索結果のメモリ上の表現。
// ファイルから丸ごと読み込み、メモリ上で更新し、丸ごと書き戻す。
// 複数goroutineからの参照・更新に対して安全。
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New は空のキャッシュを生成する。
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get はドメインのエントリを返す。
func (c *Cache) Get(domain string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[domain]
	return e, ok
}

// Has はドメインのエントリが存在するかを返す。
func (c *Cache) Has(domain string) bool {
	_, ok := c.Get(domain)
	return ok
}

// Set はドメインのエントリを置き換える。1ドメインにつきエントリは1つ。
func (c *Cache) Set(domain string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[domain] = e
}

// Delete はドメインのエントリを削除し、削除したかどうかを返す。
func (c *Cache) Delete(domain string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[domain]; !ok {
		return false
	}
	delete(c.entries, domain)
	return true
}

// Len はエントリ数を返す。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Domains はキャッシュ済みドメインを昇順で返す。
func (c *Cache) Domains() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for d := range c.entries {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON はドメイン→エントリのJSONオブジェクトに変換する。
func (c *Cache) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c.entries)
}

// decode はキャッシュファイルの内容を読み込む。
// 個々のエントリが不正な場合はそのエントリのみ読み飛ばす。
func decode(data []byte, logger *slog.Logger) (*Cache, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("キャッシュJSONの解析に失敗: %w", err)
	}

	c := New()
	for domain, msg := range raw {
		var e Entry
		err := json.Unmarshal(msg, &e)
		if err == nil && e.kind == 0 {
			err = fmt.Errorf("空のキャッシュエントリです")
		}
		if err != nil {
			logger.Warn("不正なキャッシュエントリを読み飛ばしました",
				slog.String("domain", domain),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.entries[domain] = e
	}
	return c, nil
}
