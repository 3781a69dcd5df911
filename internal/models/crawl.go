package models

import (
	"fmt"
)

// FailureKind classifies why a fetch did not produce text
type FailureKind string

const (
	FailureTimeout                FailureKind = "timeout"
	FailureConnectionError        FailureKind = "connection_error"
	FailureHTTPStatus             FailureKind = "http_status"
	FailureUnsupportedContentType FailureKind = "unsupported_content_type"
	FailureExtractionEmpty        FailureKind = "extraction_empty"
)

// CrawlFailure is a classified fetch failure
type CrawlFailure struct {
	Kind       FailureKind
	StatusCode int // response status, 0 when no response arrived
	Detail     string
}

// Transient reports whether retrying can plausibly change the result.
// Timeouts, connection errors and 5xx responses are transient; everything else is permanent.
func (f CrawlFailure) Transient() bool {
	switch f.Kind {
	case FailureTimeout, FailureConnectionError:
		return true
	case FailureHTTPStatus:
		return f.StatusCode >= 500
	default:
		return false
	}
}

// Label is the histogram bucket name, http statuses carry their code ("http_404")
func (f CrawlFailure) Label() string {
	if f.Kind == FailureHTTPStatus {
		return fmt.Sprintf("http_%d", f.StatusCode)
	}
	return string(f.Kind)
}

func (f CrawlFailure) String() string {
	if f.Detail == "" {
		return f.Label()
	}
	return f.Label() + ": " + f.Detail
}

// CrawlOutcome is the result of one fetch attempt: Fetched, FailedAttempt or PermanentFailure
type CrawlOutcome interface {
	isCrawlOutcome()
}

// Fetched carries extracted markdown
type Fetched struct {
	Text       string
	PageTitle  string
	HTTPStatus int
}

// FailedAttempt is a transient failure; the article stays pending until attempts run out
type FailedAttempt struct {
	Failure CrawlFailure
}

// PermanentFailure settles the article as failed immediately
type PermanentFailure struct {
	Failure CrawlFailure
}

func (Fetched) isCrawlOutcome()          {}
func (FailedAttempt) isCrawlOutcome()    {}
func (PermanentFailure) isCrawlOutcome() {}

// OutcomeFor wraps a failure in the outcome its classification calls for
func OutcomeFor(failure CrawlFailure) CrawlOutcome {
	if failure.Transient() {
		return FailedAttempt{Failure: failure}
	}
	return PermanentFailure{Failure: failure}
}

// Histogram counts settled articles per bucket
type Histogram map[string]int

// HistogramGrouping selects the histogram buckets
type HistogramGrouping string

const (
	// GroupByStatus keys by HTTP status code, "0" for articles that never got a response
	GroupByStatus HistogramGrouping = "status"
	// GroupByKind keys by classification label: fetched, timeout, http_404, ...
	GroupByKind HistogramGrouping = "kind"
)

// ParseHistogramGrouping validates a grouping name
func ParseHistogramGrouping(s string) (HistogramGrouping, error) {
	switch g := HistogramGrouping(s); g {
	case GroupByStatus, GroupByKind:
		return g, nil
	default:
		return "", fmt.Errorf("unsupported histogram grouping %q (expected status or kind)", s)
	}
}
