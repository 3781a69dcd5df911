package crawler

import (
	"context"
	"errors"
	"net"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

// Classify maps a fetch or extraction error to a crawl failure.
// Anything not recognised as a timeout or an application-level result is a connection error.
func Classify(err error) models.CrawlFailure {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return models.CrawlFailure{Kind: models.FailureHTTPStatus, StatusCode: statusErr.StatusCode, Detail: statusErr.Error()}
	}

	var contentTypeErr *ContentTypeError
	if errors.As(err, &contentTypeErr) {
		return models.CrawlFailure{Kind: models.FailureUnsupportedContentType, StatusCode: contentTypeErr.StatusCode, Detail: contentTypeErr.ContentType}
	}

	var panicErr *common.PanicError
	if errors.Is(err, ErrExtractionEmpty) || errors.As(err, &panicErr) {
		return models.CrawlFailure{Kind: models.FailureExtractionEmpty, Detail: err.Error()}
	}

	if errors.Is(err, ErrTooManyRedirects) {
		return models.CrawlFailure{Kind: models.FailureConnectionError, Detail: err.Error()}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.CrawlFailure{Kind: models.FailureTimeout, Detail: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.CrawlFailure{Kind: models.FailureTimeout, Detail: err.Error()}
	}

	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return models.CrawlFailure{Kind: models.FailureConnectionError, Detail: detail}
}
