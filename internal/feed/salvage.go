package feed

import (
	"bytes"

	"github.com/mmcdole/gofeed"
)

// maxSalvageAttempts は壊れたフィードの復元で試す切断位置の最大数。
const maxSalvageAttempts = 20

// salvageFeed はパースに失敗したフィードから、閉じタグまで揃ったエントリだけを取り出す。
// 最後の完結したエントリの直後で文書を切り、ルート要素を閉じて再パースする。
// 再パースに失敗した場合は1つ前のエントリ境界で切り直す。
// エントリを1件も取り出せない場合はfalseを返す。
func salvageFeed(body []byte) (*gofeed.Feed, bool) {
	closeTag, suffix := salvageTags(body)
	if closeTag == nil {
		return nil, false
	}

	end := len(body)
	for attempt := 0; attempt < maxSalvageAttempts; attempt++ {
		i := bytes.LastIndex(body[:end], closeTag)
		if i < 0 {
			break
		}
		cut := i + len(closeTag)

		doc := make([]byte, 0, cut+len(suffix))
		doc = append(doc, body[:cut]...)
		doc = append(doc, suffix...)
		parsed, err := gofeed.NewParser().Parse(bytes.NewReader(doc))
		if err == nil && len(parsed.Items) > 0 {
			return parsed, true
		}
		end = i
	}
	return nil, false
}

// salvageTags はフィード形式に応じて、エントリの閉じタグと文書を閉じる末尾を返す。
func salvageTags(body []byte) (closeTag, suffix []byte) {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeAtom:
		return []byte("</entry>"), []byte("</feed>")
	case gofeed.FeedTypeRSS:
		// RSS 1.0はitemがchannelの外に並ぶ
		if bytes.Contains(body, []byte("<rdf:RDF")) {
			return []byte("</item>"), []byte("</rdf:RDF>")
		}
		return []byte("</item>"), []byte("</channel></rss>")
	default:
		return nil, nil
	}
}
