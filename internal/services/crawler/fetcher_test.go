package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

func testCrawlerConfig() *common.CrawlerConfig {
	config := common.NewDefaultConfig().Crawler
	config.Concurrency = 4
	config.RequestTimeout = common.Duration(2 * time.Second)
	config.InitialBackoff = common.Duration(time.Millisecond)
	config.MaxBackoff = common.Duration(5 * time.Millisecond)
	config.PerHostInterval = 0
	config.MaxRedirects = 3
	return &config
}

const articleHTML = `<html><head><title>Test Page</title></head><body>
<nav><a href="/">Home</a></nav>
<article><h1>Heading</h1><p>The quick brown fox jumps over the lazy dog. This paragraph is long enough to be the main content of the page, and then some more words follow to make sure of it.</p><p>Second paragraph with more words to read.</p></article>
<footer>Copyright</footer>
</body></html>`

func TestFetch_HTML(t *testing.T) {
	var gotUA, gotEncoding string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	config := testCrawlerConfig()
	page, err := NewFetcher(config).Fetch(context.Background(), server.URL+"/a")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "text/html", page.ContentType)
	assert.Contains(t, string(page.Body), "quick brown fox")
	assert.Equal(t, config.UserAgent, gotUA)
	assert.Contains(t, gotEncoding, "br")
}

func TestFetch_Compressed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/gzip":
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write([]byte(articleHTML))
			_ = zw.Close()
			w.Header().Set("Content-Encoding", "gzip")
		case "/br":
			bw := brotli.NewWriter(&buf)
			_, _ = bw.Write([]byte(articleHTML))
			_ = bw.Close()
			w.Header().Set("Content-Encoding", "br")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	fetcher := NewFetcher(testCrawlerConfig())
	for _, path := range []string{"/gzip", "/br"} {
		t.Run(path, func(t *testing.T) {
			page, err := fetcher.Fetch(context.Background(), server.URL+path)
			require.NoError(t, err)
			assert.Contains(t, string(page.Body), "quick brown fox")
		})
	}
}

func TestFetch_TranscodesCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in Latin-1
		_, _ = w.Write([]byte("<html><body><p>caf\xe9</p></body></html>"))
	}))
	defer server.Close()

	page, err := NewFetcher(testCrawlerConfig()).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "café")
}

func TestFetch_SniffsMissingContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		if r.URL.Path == "/binary" {
			_, _ = w.Write([]byte("%PDF-1.4 binary"))
			return
		}
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	fetcher := NewFetcher(testCrawlerConfig())

	page, err := fetcher.Fetch(context.Background(), server.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "text/html", page.ContentType)

	_, err = fetcher.Fetch(context.Background(), server.URL+"/binary")
	var ctErr *ContentTypeError
	require.ErrorAs(t, err, &ctErr)
	assert.Equal(t, "application/pdf", ctErr.ContentType)
	assert.Equal(t, http.StatusOK, ctErr.StatusCode)
}

func TestFetch_TruncatesLargeBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(bytes.Repeat([]byte("a"), 4096))
	}))
	defer server.Close()

	config := testCrawlerConfig()
	config.MaxBodySize = 1000
	page, err := NewFetcher(config).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.True(t, page.Truncated)
	assert.Len(t, page.Body, 1000)
}

func TestFetch_ClassifiedFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/unavailable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	config := testCrawlerConfig()
	config.RequestTimeout = common.Duration(100 * time.Millisecond)
	fetcher := NewFetcher(config)

	tests := []struct {
		path      string
		kind      models.FailureKind
		status    int
		transient bool
	}{
		{"/missing", models.FailureHTTPStatus, 404, false},
		{"/unavailable", models.FailureHTTPStatus, 503, true},
		{"/pdf", models.FailureUnsupportedContentType, 200, false},
		{"/loop", models.FailureConnectionError, 0, true},
		{"/slow", models.FailureTimeout, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := fetcher.Fetch(context.Background(), server.URL+tt.path)
			require.Error(t, err)

			failure := Classify(err)
			assert.Equal(t, tt.kind, failure.Kind)
			assert.Equal(t, tt.status, failure.StatusCode)
			assert.Equal(t, tt.transient, failure.Transient())
		})
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewFetcher(testCrawlerConfig()).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.Equal(t, models.FailureConnectionError, Classify(err).Kind)
}
