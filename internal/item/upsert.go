package item

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/repository"
)

// ArticleUpsertService は重複排除済みの記事を記事ストアに保存する。
type ArticleUpsertService struct {
	repo   repository.ArticleRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewArticleUpsertService はArticleUpsertServiceの新しいインスタンスを生成する。
func NewArticleUpsertService(repo repository.ArticleRepository, logger *slog.Logger) *ArticleUpsertService {
	return &ArticleUpsertService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Upsert は記事をweekに紐付けて保存し、処理した件数を返す。
// IDはURLから導出するため、同じURLの再取得は既存記事の更新になる。
// URLが空の記事は保存しない。
func (s *ArticleUpsertService) Upsert(ctx context.Context, items []model.FeedItem, week string) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	fetchedAt := s.now()
	articles := make([]model.Article, 0, len(items))
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		articles = append(articles, model.Article{
			ID:        ArticleID(it.URL),
			URL:       it.URL,
			Title:     it.Title,
			Summary:   it.Summary,
			Source:    it.Source,
			Published: it.Published,
			FetchedAt: fetchedAt,
			Week:      week,
		})
	}

	n, err := s.repo.UpsertArticles(ctx, articles)
	if err != nil {
		s.logger.Error("記事の保存に失敗しました",
			slog.String("week", week),
			slog.Int("count", len(articles)),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("記事の保存に失敗: %w", err)
	}

	s.logger.Info("記事UPSERT完了",
		slog.String("week", week),
		slog.Int("count", n),
	)
	return n, nil
}
