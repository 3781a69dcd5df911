package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/writers"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/models"
	"github.com/Vogeltak/reading-addiction/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, *badger.ArticleStorage) {
	t.Helper()

	logger := arbor.NewLogger().WithWriters([]writers.IWriter{})
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "import.db")})
	require.NoError(t, err)

	storage := badger.NewArticleStorage(db, logger, 3)
	t.Cleanup(func() { _ = storage.Close() })

	return NewService(storage, logger, &common.ImporterConfig{TagDelimiters: "|,"}), storage
}

func TestImport_Idempotent(t *testing.T) {
	service, storage := newTestService(t)
	ctx := context.Background()

	summary, err := service.Import(ctx, strings.NewReader(sampleExport))
	require.NoError(t, err)
	assert.Equal(t, Summary{Rows: 3, Imported: 3}, summary)

	summary, err = service.Import(ctx, strings.NewReader(sampleExport))
	require.NoError(t, err)
	assert.Equal(t, Summary{Rows: 3, Unchanged: 3}, summary)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Pending)
}

func TestImport_ReimportUpdatesMetadataOnly(t *testing.T) {
	service, storage := newTestService(t)
	ctx := context.Background()

	_, err := service.Import(ctx, strings.NewReader(sampleExport))
	require.NoError(t, err)

	url := "https://en.wikipedia.org/wiki/Taoism"
	_, err = storage.RecordCrawlResult(ctx, url, models.Fetched{Text: "Taoism is...", HTTPStatus: 200})
	require.NoError(t, err)

	updated := strings.Replace(sampleExport, "Taoism,https", "Taoism (philosophy),https", 1)
	summary, err := service.Import(ctx, strings.NewReader(updated))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 2, summary.Unchanged)

	article, err := storage.GetArticle(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "Taoism (philosophy)", article.Title)
	assert.Equal(t, models.CrawlStatusFetched, article.CrawlStatus)
	assert.Equal(t, "Taoism is...", article.ExtractedText)
}

func TestImport_DuplicateURLsCollapse(t *testing.T) {
	service, storage := newTestService(t)
	ctx := context.Background()

	export := "title,url,time_added,tags,status\n" +
		"One,https://example.com/a#top,1600000000,x,unread\n" +
		"One,HTTPS://EXAMPLE.COM/a?utm_source=feed,1600000000,x,unread\n" +
		"broken,not-a-url,1600000000,,unread\n"

	summary, err := service.Import(ctx, strings.NewReader(export))
	require.NoError(t, err)
	assert.Equal(t, Summary{Rows: 3, Imported: 1, Unchanged: 1, Skipped: 1}, summary)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestImportFile_Missing(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.ImportFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
