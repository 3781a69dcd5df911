// Package exporter writes the crawl histogram and document vectors for downstream analysis.
package exporter

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/ternarybob/arbor"

	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

// Format selects an output encoding
type Format string

const (
	FormatJSON  Format = "json"  // one JSON document
	FormatJSONL Format = "jsonl" // one JSON value per line
	FormatTSV   Format = "tsv"
)

// ParseFormat validates a --format value against the formats a command supports
func ParseFormat(value string, allowed ...Format) (Format, error) {
	for _, format := range allowed {
		if Format(value) == format {
			return format, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q (expected one of %v)", value, allowed)
}

// Service reads exports from storage
type Service struct {
	storage interfaces.ArticleStorage
	logger  arbor.ILogger
}

// NewService creates a new exporter service
func NewService(storage interfaces.ArticleStorage, logger arbor.ILogger) *Service {
	return &Service{storage: storage, logger: logger}
}

// Histogram writes the counts of all settled articles, bucketed by HTTP status or by classification
func (s *Service) Histogram(ctx context.Context, w io.Writer, grouping models.HistogramGrouping, format Format) error {
	histogram, err := s.storage.ExportHistogram(ctx, grouping)
	if err != nil {
		return err
	}
	s.logger.Debug().Int("buckets", len(histogram)).Str("by", string(grouping)).Msg("Exporting histogram")
	return WriteHistogram(w, histogram, format)
}

// WriteHistogram encodes h as a JSON object or as label<TAB>count lines, largest count first
func WriteHistogram(w io.Writer, h models.Histogram, format Format) error {
	switch format {
	case FormatJSON:
		if h == nil {
			h = models.Histogram{}
		}
		return json.NewEncoder(w).Encode(h)
	case FormatTSV:
		labels := make([]string, 0, len(h))
		for label := range h {
			labels = append(labels, label)
		}
		slices.SortFunc(labels, func(a, b string) int {
			if c := cmp.Compare(h[b], h[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})

		bw := bufio.NewWriter(w)
		for _, label := range labels {
			if _, err := fmt.Fprintf(bw, "%s\t%d\n", label, h[label]); err != nil {
				return err
			}
		}
		return bw.Flush()
	default:
		return fmt.Errorf("unsupported histogram format %q", format)
	}
}

// Vectors streams every document vector and returns how many were written.
// JSONL writes one object per line; JSON writes a single array.
func (s *Service) Vectors(ctx context.Context, w io.Writer, format Format) (int, error) {
	if format != FormatJSONL && format != FormatJSON {
		return 0, fmt.Errorf("unsupported vector format %q", format)
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	if format == FormatJSON {
		if _, err := bw.WriteString("["); err != nil {
			return 0, err
		}
	}

	count := 0
	for vector, err := range s.storage.Vectors(ctx) {
		if err != nil {
			return count, err
		}
		if format == FormatJSON && count > 0 {
			if _, err := bw.WriteString(","); err != nil {
				return count, err
			}
		}
		// Encode terminates each value with a newline, which is also valid inside an array
		if err := enc.Encode(vector); err != nil {
			return count, fmt.Errorf("failed to encode vector for %s: %w", vector.URL, err)
		}
		count++
	}

	if format == FormatJSON {
		if _, err := bw.WriteString("]\n"); err != nil {
			return count, err
		}
	}

	if err := bw.Flush(); err != nil {
		return count, err
	}

	s.logger.Debug().Int("vectors", count).Str("format", string(format)).Msg("Exported vectors")
	return count, nil
}
