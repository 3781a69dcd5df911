package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

// ErrMissingColumn is returned when the header lacks a required column
var ErrMissingColumn = errors.New("missing required column")

// RowError describes a row that could not become an article
type RowError struct {
	Line   int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// PocketReader reads a Pocket CSV export (title,url,time_added,tags,status).
// Columns are located by header name, so order and extra columns do not matter.
type PocketReader struct {
	csv           *csv.Reader
	columns       map[string]int
	tagDelimiters string
}

// NewPocketReader reads the header row and prepares for Next.
func NewPocketReader(r io.Reader, tagDelimiters string) (*PocketReader, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty export: %w", ErrMissingColumn)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	if _, ok := columns["url"]; !ok {
		return nil, fmt.Errorf("%w: url", ErrMissingColumn)
	}

	if tagDelimiters == "" {
		tagDelimiters = "|"
	}

	return &PocketReader{csv: reader, columns: columns, tagDelimiters: tagDelimiters}, nil
}

// Next returns the next row as article metadata. A malformed row yields a *RowError and the
// reader stays usable; io.EOF marks the end; any other error is fatal.
func (p *PocketReader) Next() (models.ArticleMetadata, error) {
	record, err := p.csv.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return models.ArticleMetadata{}, &RowError{Line: parseErr.StartLine, Reason: parseErr.Err.Error()}
		}
		return models.ArticleMetadata{}, err
	}
	line, _ := p.csv.FieldPos(0)

	rawURL := p.field(record, "url")
	normalized, err := common.NormalizeURL(rawURL)
	if err != nil {
		return models.ArticleMetadata{}, &RowError{Line: line, Reason: err.Error()}
	}

	addedAt, err := parseTimeAdded(p.field(record, "time_added"))
	if err != nil {
		return models.ArticleMetadata{}, &RowError{Line: line, Reason: err.Error()}
	}

	title := strings.TrimSpace(p.field(record, "title"))
	if title == "" {
		title = rawURL
	}

	return models.ArticleMetadata{
		URL:        normalized,
		Title:      title,
		Tags:       splitTags(p.field(record, "tags"), p.tagDelimiters),
		AddedAt:    addedAt,
		Favorite:   parseBool(p.field(record, "favorite")),
		ReadStatus: models.ParseReadStatus(strings.ToLower(strings.TrimSpace(p.field(record, "status")))),
	}, nil
}

func (p *PocketReader) field(record []string, name string) string {
	i, ok := p.columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseTimeAdded accepts unix seconds (Pocket's format) or RFC3339
func parseTimeAdded(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing time_added")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs < 0 {
			return time.Time{}, fmt.Errorf("negative time_added %d", secs)
		}
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable time_added %q", s)
	}
	return t.UTC(), nil
}

// splitTags splits on any delimiter rune, trims and drops empty tags
func splitTags(s string, delimiters string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(delimiters, r)
	})
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
