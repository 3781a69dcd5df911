package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

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
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "export.db")})
	require.NoError(t, err)

	storage := badger.NewArticleStorage(db, logger, 1)
	t.Cleanup(func() { _ = storage.Close() })
	return NewService(storage, logger), storage
}

func seedEmbedded(t *testing.T, storage *badger.ArticleStorage, url string, vectors ...[]float32) {
	t.Helper()
	ctx := context.Background()

	_, err := storage.UpsertMetadata(ctx, models.ArticleMetadata{URL: url, Title: url, AddedAt: time.Unix(1700000000, 0)})
	require.NoError(t, err)
	_, err = storage.RecordCrawlResult(ctx, url, models.Fetched{Text: "text", HTTPStatus: 200})
	require.NoError(t, err)

	chunks := make([]models.Chunk, len(vectors))
	for i, vector := range vectors {
		chunks[i] = models.Chunk{Text: "text", Vector: vector}
	}
	_, err = storage.SaveChunks(ctx, url, "model", chunks)
	require.NoError(t, err)
}

func TestWriteHistogram(t *testing.T) {
	histogram := models.Histogram{"fetched": 10, "http_404": 3, "timeout": 3, "extraction_empty": 1}

	var buf bytes.Buffer
	require.NoError(t, WriteHistogram(&buf, histogram, FormatJSON))
	assert.JSONEq(t, `{"fetched":10,"http_404":3,"timeout":3,"extraction_empty":1}`, buf.String())

	buf.Reset()
	require.NoError(t, WriteHistogram(&buf, histogram, FormatTSV))
	assert.Equal(t, "fetched\t10\nhttp_404\t3\ntimeout\t3\nextraction_empty\t1\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteHistogram(&buf, nil, FormatJSON))
	assert.Equal(t, "{}\n", buf.String())

	assert.Error(t, WriteHistogram(&buf, histogram, FormatJSONL))
}

func TestHistogram_FromStore(t *testing.T) {
	service, storage := newTestService(t)
	ctx := context.Background()

	seedEmbedded(t, storage, "https://example.com/a", []float32{1, 2})
	_, err := storage.UpsertMetadata(ctx, models.ArticleMetadata{URL: "https://example.com/gone", AddedAt: time.Unix(1700000001, 0)})
	require.NoError(t, err)
	_, err = storage.RecordCrawlResult(ctx, "https://example.com/gone", models.PermanentFailure{
		Failure: models.CrawlFailure{Kind: models.FailureHTTPStatus, StatusCode: 410},
	})
	require.NoError(t, err)
	_, err = storage.UpsertMetadata(ctx, models.ArticleMetadata{URL: "https://example.com/pending", AddedAt: time.Unix(1700000002, 0)})
	require.NoError(t, err)

	_, err = storage.UpsertMetadata(ctx, models.ArticleMetadata{URL: "https://example.com/dead", AddedAt: time.Unix(1700000003, 0)})
	require.NoError(t, err)
	_, err = storage.RecordCrawlResult(ctx, "https://example.com/dead", models.PermanentFailure{
		Failure: models.CrawlFailure{Kind: models.FailureConnectionError, Detail: "no such host"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, service.Histogram(ctx, &buf, models.GroupByKind, FormatJSON))
	assert.JSONEq(t, `{"fetched":1,"http_410":1,"connection_error":1}`, buf.String())

	// Keyed by status code, 0 for links that never answered
	buf.Reset()
	require.NoError(t, service.Histogram(ctx, &buf, models.GroupByStatus, FormatJSON))
	assert.JSONEq(t, `{"200":1,"410":1,"0":1}`, buf.String())

	buf.Reset()
	require.NoError(t, service.Histogram(ctx, &buf, models.GroupByStatus, FormatTSV))
	assert.Equal(t, "0\t1\n200\t1\n410\t1\n", buf.String())
}

func TestVectors_JSONL(t *testing.T) {
	service, storage := newTestService(t)
	ctx := context.Background()

	seedEmbedded(t, storage, "https://example.com/a", []float32{1, 2}, []float32{3, 4})
	seedEmbedded(t, storage, "https://example.com/b", []float32{0.5, 0.25})

	var buf bytes.Buffer
	count, err := service.Vectors(ctx, &buf, FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	got := map[string][]float32{}
	for _, line := range lines {
		var vector models.DocumentVector
		require.NoError(t, json.Unmarshal([]byte(line), &vector))
		got[vector.URL] = vector.Vector
	}
	assert.Equal(t, map[string][]float32{
		"https://example.com/a": {2, 3},
		"https://example.com/b": {0.5, 0.25},
	}, got)
}

func TestVectors_JSONArray(t *testing.T) {
	service, storage := newTestService(t)
	ctx := context.Background()

	var buf bytes.Buffer
	count, err := service.Vectors(ctx, &buf, FormatJSON)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, "[]\n", buf.String())

	seedEmbedded(t, storage, "https://example.com/a", []float32{1})
	seedEmbedded(t, storage, "https://example.com/b", []float32{2})

	buf.Reset()
	count, err = service.Vectors(ctx, &buf, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var vectors []models.DocumentVector
	require.NoError(t, json.Unmarshal(buf.Bytes(), &vectors))
	assert.Len(t, vectors, 2)
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("tsv", FormatJSON, FormatTSV)
	require.NoError(t, err)
	assert.Equal(t, FormatTSV, format)

	_, err = ParseFormat("csv", FormatJSON, FormatTSV)
	assert.Error(t, err)
}
