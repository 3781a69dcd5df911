package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/Vogeltak/reading-addiction/internal/common"
)

// ErrTooManyRedirects is returned once a redirect chain exceeds the configured hops
var ErrTooManyRedirects = errors.New("too many redirects")

// StatusError is a non-2xx response
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ContentTypeError is a response that is not an HTML document
type ContentTypeError struct {
	ContentType string
	StatusCode  int
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type %q", e.ContentType)
}

// Page is a fetched HTML document, body already decompressed and transcoded to UTF-8
type Page struct {
	URL         string // after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	Truncated   bool
}

// Fetcher performs single GET requests for article pages
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// NewFetcher builds the HTTP client from crawler configuration.
// The transport's transparent gzip is disabled so brotli and gzip are negotiated the same way.
func NewFetcher(config *common.CrawlerConfig) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	transport.MaxIdleConnsPerHost = 4

	maxRedirects := config.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Timeout:   config.RequestTimeout.Std(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("%w: stopped after %d hops", ErrTooManyRedirects, maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client:      client,
		userAgent:   config.UserAgent,
		maxBodySize: config.MaxBodySize,
	}
}

// Fetch downloads url. Failures are returned as errors for Classify.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Accept-Language", "en;q=0.9,*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !isHTML(contentType) {
		return nil, &ContentTypeError{ContentType: mediaType(contentType), StatusCode: resp.StatusCode}
	}

	decoded, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		var contentTypeErr *ContentTypeError
		if errors.As(err, &contentTypeErr) {
			contentTypeErr.StatusCode = resp.StatusCode
		}
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(decoded, f.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	truncated := int64(len(raw)) > f.maxBodySize
	if truncated {
		raw = raw[:f.maxBodySize]
	}

	if contentType == "" {
		contentType = http.DetectContentType(raw)
		if !isHTML(contentType) {
			return nil, &ContentTypeError{ContentType: mediaType(contentType), StatusCode: resp.StatusCode}
		}
	}

	body := raw
	if utf8Reader, err := charset.NewReader(bytes.NewReader(raw), contentType); err == nil {
		if converted, err := io.ReadAll(utf8Reader); err == nil {
			body = converted
		}
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: mediaType(contentType),
		Body:        body,
		Truncated:   truncated,
	}, nil
}

func decodeBody(body io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		return reader, nil
	case "br":
		return brotli.NewReader(body), nil
	default:
		return nil, &ContentTypeError{ContentType: "content-encoding " + encoding}
	}
}

func mediaType(contentType string) string {
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return parsed
}

func isHTML(contentType string) bool {
	switch mediaType(contentType) {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}
