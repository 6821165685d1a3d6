package item

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ArticleID はURLから記事IDを導出する。SHA-256の16進表記の先頭16文字。
func ArticleID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

// WeekOf はISO 8601の週番号を "2026-W05" の形式で返す。
func WeekOf(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
