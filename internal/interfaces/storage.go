package interfaces

import (
	"context"
	"iter"

	"github.com/Vogeltak/reading-addiction/internal/models"
)

// ArticleStorage persists articles, their crawl state and their chunks.
// Every method is atomic; concurrent callers never observe a partial update.
type ArticleStorage interface {
	// Import
	UpsertMetadata(ctx context.Context, meta models.ArticleMetadata) (models.UpsertResult, error)

	// Crawl
	ClaimPending(ctx context.Context, limit int) ([]*models.Article, error)
	RecordCrawlResult(ctx context.Context, url string, outcome models.CrawlOutcome) (*models.Article, error)

	// Embed
	ListUnembedded(ctx context.Context, limit int) ([]*models.Article, error)
	SaveChunks(ctx context.Context, url string, model string, chunks []models.Chunk) (*models.Article, error)
	RecordEmbedFailure(ctx context.Context, url string, reason string) error
	GetChunks(ctx context.Context, url string) ([]models.Chunk, error)
	EmbeddingDimension(ctx context.Context) (int, error)

	// Export
	ExportHistogram(ctx context.Context, grouping models.HistogramGrouping) (models.Histogram, error)
	Vectors(ctx context.Context) iter.Seq2[models.DocumentVector, error]

	// Read
	GetArticle(ctx context.Context, url string) (*models.Article, error)
	GetArticleByPublicID(ctx context.Context, publicID string) (*models.Article, error)
	ListByReadStatus(ctx context.Context, status models.ReadStatus, limit int) ([]*models.Article, error)
	Stats(ctx context.Context) (models.StoreStats, error)

	Close() error
}
