package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when no article exists for a URL or public id
	ErrNotFound = errors.New("article not found")
	// ErrInvalidTransition is returned when a crawl result is recorded against an article that is no longer pending
	ErrInvalidTransition = errors.New("invalid crawl status transition")
	// ErrDimensionMismatch is returned when vectors of different lengths would be combined
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// CrawlStatus is the fetch lifecycle of an article
type CrawlStatus string

const (
	CrawlStatusPending CrawlStatus = "pending"
	CrawlStatusFetched CrawlStatus = "fetched"
	CrawlStatusFailed  CrawlStatus = "failed"
)

// ReadStatus mirrors the Pocket export status column
type ReadStatus string

const (
	ReadStatusUnread  ReadStatus = "unread"
	ReadStatusArchive ReadStatus = "archive"
)

// ParseReadStatus maps an export value to a ReadStatus; anything unrecognised is unread.
func ParseReadStatus(s string) ReadStatus {
	switch s {
	case "archive", "archived", "read":
		return ReadStatusArchive
	default:
		return ReadStatusUnread
	}
}

// Article is one saved link and everything the pipeline learned about it.
// URL is the normalized identity and the storage key.
type Article struct {
	URL      string
	PublicID string `badgerhold:"index"`

	// Import fields, the only ones a re-import may change
	Title      string
	Tags       []string
	AddedAt    time.Time
	Favorite   bool
	ReadStatus ReadStatus

	// Crawl state
	CrawlStatus   CrawlStatus `badgerhold:"index"`
	Failure       *CrawlFailure
	Attempts      int
	LastCrawledAt time.Time
	HTTPStatus    int

	// Content, set once fetched
	ExtractedText string
	PageTitle     string

	// Embedding, set once chunks are saved
	Embedding      []float32
	EmbeddingModel string
	EmbeddedAt     time.Time
	ChunkCount     int

	// Last embedding failure, cleared when chunks are saved
	EmbedFailure  string
	EmbedAttempts int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayTitle prefers the export title, falling back to the page title and then the URL
func (a *Article) DisplayTitle() string {
	switch {
	case a.Title != "" && a.Title != a.URL:
		return a.Title
	case a.PageTitle != "":
		return a.PageTitle
	default:
		return a.URL
	}
}

// Classification is the histogram label for a settled article, "" while pending
func (a *Article) Classification() string {
	switch a.CrawlStatus {
	case CrawlStatusFetched:
		return "fetched"
	case CrawlStatusFailed:
		if a.Failure == nil {
			return string(FailureConnectionError)
		}
		return a.Failure.Label()
	default:
		return ""
	}
}

// StatusBucket is the HTTP status of the last response as a histogram key, "0" when the link is dead
// and "" while pending
func (a *Article) StatusBucket() string {
	if a.CrawlStatus != CrawlStatusFetched && a.CrawlStatus != CrawlStatusFailed {
		return ""
	}
	return strconv.Itoa(a.HTTPStatus)
}

// HistogramKey is the bucket of a settled article under grouping g, "" while pending
func (a *Article) HistogramKey(g HistogramGrouping) string {
	if g == GroupByKind {
		return a.Classification()
	}
	return a.StatusBucket()
}

// ArticleMetadata is the import-owned subset of an article
type ArticleMetadata struct {
	URL        string
	Title      string
	Tags       []string
	AddedAt    time.Time
	Favorite   bool
	ReadStatus ReadStatus
}

// UpsertResult reports what UpsertMetadata did
type UpsertResult string

const (
	UpsertInserted  UpsertResult = "inserted"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

// StoreStats summarises the store for the status command
type StoreStats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Fetched     int `json:"fetched"`
	Failed      int `json:"failed"`
	Embedded    int `json:"embedded"`
	EmbedFailed int `json:"embed_failed"`
}

func (s StoreStats) String() string {
	return fmt.Sprintf("total=%d pending=%d fetched=%d failed=%d embedded=%d embed_failed=%d",
		s.Total, s.Pending, s.Fetched, s.Failed, s.Embedded, s.EmbedFailed)
}
