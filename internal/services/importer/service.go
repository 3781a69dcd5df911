package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

// Summary reports what an import did
type Summary struct {
	Rows      int
	Imported  int
	Updated   int
	Unchanged int
	Skipped   int
}

// Service loads Pocket exports into the article store
type Service struct {
	storage interfaces.ArticleStorage
	logger  arbor.ILogger
	config  *common.ImporterConfig
}

// NewService creates a new importer service
func NewService(storage interfaces.ArticleStorage, logger arbor.ILogger, config *common.ImporterConfig) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
		config:  config,
	}
}

// ImportFile opens path and imports it
func (s *Service) ImportFile(ctx context.Context, path string) (Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()

	return s.Import(ctx, file)
}

// Import upserts every valid row. Malformed rows are skipped and counted;
// storage errors stop the import.
func (s *Service) Import(ctx context.Context, r io.Reader) (Summary, error) {
	var summary Summary

	reader, err := NewPocketReader(r, s.config.TagDelimiters)
	if err != nil {
		return summary, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		meta, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		summary.Rows++

		var rowErr *RowError
		if errors.As(err, &rowErr) {
			summary.Skipped++
			s.logger.Warn().Int("line", rowErr.Line).Str("reason", rowErr.Reason).Msg("Skipping malformed row")
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("failed to read export: %w", err)
		}

		result, err := s.storage.UpsertMetadata(ctx, meta)
		if err != nil {
			return summary, err
		}

		switch result {
		case models.UpsertInserted:
			summary.Imported++
		case models.UpsertUpdated:
			summary.Updated++
		case models.UpsertUnchanged:
			summary.Unchanged++
		}
	}

	s.logger.Info().
		Int("rows", summary.Rows).
		Int("imported", summary.Imported).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("skipped", summary.Skipped).
		Msg("Import complete")

	return summary, nil
}
