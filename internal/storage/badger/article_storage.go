package badger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

// errStopIteration ends a ForEach early when a consumer stops pulling
var errStopIteration = errors.New("stop iteration")

// ArticleStorage implements interfaces.ArticleStorage on badgerhold.
// Writes are serialized: badgerhold index entries are shared between rows, so two concurrent
// transactions touching the same status index would otherwise conflict on commit.
type ArticleStorage struct {
	db          *BadgerDB
	logger      arbor.ILogger
	maxAttempts int
	writeMu     sync.Mutex
	now         func() time.Time
}

// NewArticleStorage creates a new ArticleStorage instance.
// maxAttempts is the number of transient failures after which an article settles as failed.
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger, maxAttempts int) *ArticleStorage {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ArticleStorage{
		db:          db,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

var _ interfaces.ArticleStorage = (*ArticleStorage)(nil)

func (s *ArticleStorage) update(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Store().Badger().Update(fn)
}

func (s *ArticleStorage) txGetArticle(tx *badger.Txn, url string) (*models.Article, error) {
	var article models.Article
	if err := s.db.Store().TxGet(tx, url, &article); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, url)
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}

// UpsertMetadata inserts a new pending article or refreshes the import fields of an existing one
func (s *ArticleStorage) UpsertMetadata(ctx context.Context, meta models.ArticleMetadata) (models.UpsertResult, error) {
	if meta.URL == "" {
		return "", fmt.Errorf("article URL is required")
	}
	meta.Tags = normalizeTags(meta.Tags)
	if meta.ReadStatus == "" {
		meta.ReadStatus = models.ReadStatusUnread
	}

	var result models.UpsertResult
	err := s.update(ctx, func(tx *badger.Txn) error {
		existing, err := s.txGetArticle(tx, meta.URL)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}

		now := s.now()
		if existing == nil {
			article := &models.Article{
				URL:         meta.URL,
				PublicID:    uuid.New().String(),
				Title:       meta.Title,
				Tags:        meta.Tags,
				AddedAt:     meta.AddedAt,
				Favorite:    meta.Favorite,
				ReadStatus:  meta.ReadStatus,
				CrawlStatus: models.CrawlStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			result = models.UpsertInserted
			return s.db.Store().TxInsert(tx, article.URL, article)
		}

		if existing.Title == meta.Title &&
			slices.Equal(existing.Tags, meta.Tags) &&
			existing.AddedAt.Equal(meta.AddedAt) &&
			existing.Favorite == meta.Favorite &&
			existing.ReadStatus == meta.ReadStatus {
			result = models.UpsertUnchanged
			return nil
		}

		existing.Title = meta.Title
		existing.Tags = meta.Tags
		existing.AddedAt = meta.AddedAt
		existing.Favorite = meta.Favorite
		existing.ReadStatus = meta.ReadStatus
		existing.UpdatedAt = now
		result = models.UpsertUpdated
		return s.db.Store().TxUpdate(tx, existing.URL, existing)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert article %s: %w", meta.URL, err)
	}
	return result, nil
}

// ClaimPending returns up to limit pending articles, oldest first. limit <= 0 means all.
// Nothing is marked in-flight: an interrupted run leaves the articles pending.
func (s *ArticleStorage) ClaimPending(ctx context.Context, limit int) ([]*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var articles []models.Article
	query := badgerhold.Where("CrawlStatus").Eq(models.CrawlStatusPending).Index("CrawlStatus")
	if err := s.db.Store().Find(&articles, query); err != nil {
		return nil, fmt.Errorf("failed to list pending articles: %w", err)
	}

	return oldestFirst(articles, limit), nil
}

// RecordCrawlResult applies one fetch outcome to a pending article
func (s *ArticleStorage) RecordCrawlResult(ctx context.Context, url string, outcome models.CrawlOutcome) (*models.Article, error) {
	var saved *models.Article
	err := s.update(ctx, func(tx *badger.Txn) error {
		article, err := s.txGetArticle(tx, url)
		if err != nil {
			return err
		}
		if article.CrawlStatus != models.CrawlStatusPending {
			return fmt.Errorf("%w: %s is %s", models.ErrInvalidTransition, url, article.CrawlStatus)
		}

		now := s.now()
		article.Attempts++
		article.LastCrawledAt = now
		article.UpdatedAt = now

		switch o := outcome.(type) {
		case models.Fetched:
			article.CrawlStatus = models.CrawlStatusFetched
			article.ExtractedText = o.Text
			article.PageTitle = o.PageTitle
			article.HTTPStatus = o.HTTPStatus
			article.Failure = nil
		case models.FailedAttempt:
			failure := o.Failure
			article.Failure = &failure
			article.HTTPStatus = failure.StatusCode
			if article.Attempts >= s.maxAttempts {
				article.CrawlStatus = models.CrawlStatusFailed
			}
		case models.PermanentFailure:
			failure := o.Failure
			article.Failure = &failure
			article.HTTPStatus = failure.StatusCode
			article.CrawlStatus = models.CrawlStatusFailed
		default:
			return fmt.Errorf("unknown crawl outcome %T", outcome)
		}

		saved = article
		return s.db.Store().TxUpdate(tx, article.URL, article)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record crawl result for %s: %w", url, err)
	}
	return saved, nil
}

// ListUnembedded returns fetched articles without chunks, oldest first. limit <= 0 means all.
func (s *ArticleStorage) ListUnembedded(ctx context.Context, limit int) ([]*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var articles []models.Article
	query := badgerhold.Where("CrawlStatus").Eq(models.CrawlStatusFetched).Index("CrawlStatus").
		And("ChunkCount").Eq(0)
	if err := s.db.Store().Find(&articles, query); err != nil {
		return nil, fmt.Errorf("failed to list unembedded articles: %w", err)
	}

	return oldestFirst(articles, limit), nil
}

// SaveChunks replaces the chunks of a fetched article and stores their mean as its embedding.
// The old chunks, the new chunks and the article update commit together or not at all.
func (s *ArticleStorage) SaveChunks(ctx context.Context, url string, model string, chunks []models.Chunk) (*models.Article, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to save for %s", url)
	}

	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		vectors[i] = chunks[i].Vector
	}
	mean, err := models.MeanVector(vectors)
	if err != nil {
		return nil, fmt.Errorf("chunks of %s: %w", url, err)
	}

	var saved *models.Article
	err = s.update(ctx, func(tx *badger.Txn) error {
		article, err := s.txGetArticle(tx, url)
		if err != nil {
			return err
		}
		if article.CrawlStatus != models.CrawlStatusFetched {
			return fmt.Errorf("%w: cannot embed %s article %s", models.ErrInvalidTransition, article.CrawlStatus, url)
		}

		store := s.db.Store()
		if err := store.TxDeleteMatching(tx, &models.Chunk{}, badgerhold.Where("ArticleURL").Eq(url).Index("ArticleURL")); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}

		for i := range chunks {
			chunk := chunks[i]
			chunk.ArticleURL = url
			chunk.Index = i
			chunk.ID = models.ChunkID(url, i)
			if err := store.TxUpsert(tx, chunk.ID, &chunk); err != nil {
				return fmt.Errorf("failed to save chunk %d: %w", i, err)
			}
		}

		now := s.now()
		article.Embedding = mean
		article.EmbeddingModel = model
		article.EmbeddedAt = now
		article.ChunkCount = len(chunks)
		article.EmbedFailure = ""
		article.UpdatedAt = now

		saved = article
		return store.TxUpdate(tx, article.URL, article)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save chunks for %s: %w", url, err)
	}
	return saved, nil
}

// RecordEmbedFailure notes why an article could not be embedded; its chunks and status are untouched
func (s *ArticleStorage) RecordEmbedFailure(ctx context.Context, url string, reason string) error {
	err := s.update(ctx, func(tx *badger.Txn) error {
		article, err := s.txGetArticle(tx, url)
		if err != nil {
			return err
		}
		article.EmbedFailure = reason
		article.EmbedAttempts++
		article.UpdatedAt = s.now()
		return s.db.Store().TxUpdate(tx, article.URL, article)
	})
	if err != nil {
		return fmt.Errorf("failed to record embed failure for %s: %w", url, err)
	}
	return nil
}

// GetChunks returns an article's chunks in index order
func (s *ArticleStorage) GetChunks(ctx context.Context, url string) ([]models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	if err := s.db.Store().Find(&chunks, badgerhold.Where("ArticleURL").Eq(url).Index("ArticleURL")); err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// EmbeddingDimension returns the length of stored document vectors, 0 when nothing is embedded yet
func (s *ArticleStorage) EmbeddingDimension(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var articles []models.Article
	if err := s.db.Store().Find(&articles, badgerhold.Where("ChunkCount").Gt(0).Limit(1)); err != nil {
		return 0, fmt.Errorf("failed to sample embedding: %w", err)
	}
	if len(articles) == 0 {
		return 0, nil
	}
	return len(articles[0].Embedding), nil
}

// ExportHistogram counts settled articles per status code or classification. Pending articles are not counted.
func (s *ArticleStorage) ExportHistogram(ctx context.Context, grouping models.HistogramGrouping) (models.Histogram, error) {
	histogram := models.Histogram{}
	err := s.db.Store().ForEach(&badgerhold.Query{}, func(article *models.Article) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if label := article.HistogramKey(grouping); label != "" {
			histogram[label]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	return histogram, nil
}

// Vectors streams the document vector of every embedded article.
// The sequence reads lazily and can be ranged over again for a fresh pass.
func (s *ArticleStorage) Vectors(ctx context.Context) iter.Seq2[models.DocumentVector, error] {
	return func(yield func(models.DocumentVector, error) bool) {
		stopped := false
		err := s.db.Store().ForEach(badgerhold.Where("ChunkCount").Gt(0), func(article *models.Article) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !yield(models.DocumentVector{URL: article.URL, Vector: article.Embedding}, nil) {
				stopped = true
				return errStopIteration
			}
			return nil
		})
		if err != nil && !stopped {
			yield(models.DocumentVector{}, fmt.Errorf("failed to read vectors: %w", err))
		}
	}
}

// GetArticle returns one article by normalized URL
func (s *ArticleStorage) GetArticle(ctx context.Context, url string) (*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var article models.Article
	if err := s.db.Store().Get(url, &article); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, url)
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}

// GetArticleByPublicID resolves the id used in reader URLs
func (s *ArticleStorage) GetArticleByPublicID(ctx context.Context, publicID string) (*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var articles []models.Article
	query := badgerhold.Where("PublicID").Eq(publicID).Index("PublicID").Limit(1)
	if err := s.db.Store().Find(&articles, query); err != nil {
		return nil, fmt.Errorf("failed to find article: %w", err)
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: public id %s", models.ErrNotFound, publicID)
	}
	return &articles[0], nil
}

// ListByReadStatus returns articles with the given read status, most recently added first
func (s *ArticleStorage) ListByReadStatus(ctx context.Context, status models.ReadStatus, limit int) ([]*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var articles []models.Article
	if err := s.db.Store().Find(&articles, badgerhold.Where("ReadStatus").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list %s articles: %w", status, err)
	}

	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].AddedAt.Equal(articles[j].AddedAt) {
			return articles[i].AddedAt.After(articles[j].AddedAt)
		}
		return articles[i].URL < articles[j].URL
	})
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}

	result := make([]*models.Article, len(articles))
	for i := range articles {
		result[i] = &articles[i]
	}
	return result, nil
}

// Stats counts articles per pipeline stage
func (s *ArticleStorage) Stats(ctx context.Context) (models.StoreStats, error) {
	var stats models.StoreStats
	err := s.db.Store().ForEach(&badgerhold.Query{}, func(article *models.Article) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Total++
		switch article.CrawlStatus {
		case models.CrawlStatusPending:
			stats.Pending++
		case models.CrawlStatusFetched:
			stats.Fetched++
		case models.CrawlStatusFailed:
			stats.Failed++
		}
		if article.ChunkCount > 0 {
			stats.Embedded++
		} else if article.EmbedFailure != "" {
			stats.EmbedFailed++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to compute stats: %w", err)
	}
	return stats, nil
}

// Close closes the underlying database
func (s *ArticleStorage) Close() error {
	return s.db.Close()
}

// oldestFirst orders by AddedAt then URL and applies limit
func oldestFirst(articles []models.Article, limit int) []*models.Article {
	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].AddedAt.Equal(articles[j].AddedAt) {
			return articles[i].AddedAt.Before(articles[j].AddedAt)
		}
		return articles[i].URL < articles[j].URL
	})
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}

	result := make([]*models.Article, len(articles))
	for i := range articles {
		result[i] = &articles[i]
	}
	return result
}

// normalizeTags trims, drops empties and returns a sorted set
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
