package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/writers"

	"github.com/Vogeltak/reading-addiction/internal/common"
)

func testEmbeddingConfig(baseURL string) *common.EmbeddingConfig {
	config := common.NewDefaultConfig().Embedding
	config.BaseURL = baseURL
	config.APIKey = "test-key"
	config.RequestsPerSecond = 0
	config.Timeout = common.Duration(2 * time.Second)
	config.MaxAttempts = 3
	config.InitialBackoff = common.Duration(time.Millisecond)
	config.MaxBackoff = common.Duration(5 * time.Millisecond)
	config.BatchSize = 2
	return &config
}

func TestOpenRouter_Embed(t *testing.T) {
	var got embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		// answer out of order, the client must sort by index
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","data":[
			{"index":1,"embedding":[0.3,0.4]},
			{"index":0,"embedding":[0.1,0.2]}
		]}`))
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(testEmbeddingConfig(server.URL+"/"), arbor.NewLogger().WithWriters([]writers.IWriter{}), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	defer client.Close()

	vectors, err := client.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vectors)
	assert.Equal(t, "qwen/qwen3-embedding-8b", got.Model)
	assert.Equal(t, []string{"first", "second"}, got.Input)
	assert.Equal(t, "qwen/qwen3-embedding-8b", client.ModelName())
}

type countingTransport struct {
	base  http.RoundTripper
	calls int
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	return t.base.RoundTrip(req)
}

func TestOpenRouter_ClientOptions(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer server.Close()

	transport := &countingTransport{base: server.Client().Transport}
	client, err := NewOpenRouterClient(testEmbeddingConfig(server.URL), arbor.NewLogger().WithWriters([]writers.IWriter{}),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithUserAgent("clusterer/1.0"),
	)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Embed(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, "clusterer/1.0", gotUA)
}

func TestNewProvider_SendsConfiguredUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer server.Close()

	config := testEmbeddingConfig(server.URL)
	config.UserAgent = "reading-addiction/test"

	provider, err := NewProvider(context.Background(), config, arbor.NewLogger().WithWriters([]writers.IWriter{}))
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.Embed(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, "reading-addiction/test", gotUA)
}

func TestOpenRouter_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		header       map[string]string
		retryable    bool
		misconfig    bool
		retryAfter   time.Duration
		wantContains string
	}{
		{name: "unauthorized", status: 401, body: `{"error":{"message":"No auth credentials found","code":401}}`, misconfig: true, wantContains: "No auth credentials found"},
		{name: "unknown model", status: 404, body: `{"error":{"message":"model not found"}}`, misconfig: true},
		{name: "rate limited", status: 429, body: `{"error":{"message":"slow down"}}`, header: map[string]string{"Retry-After": "7"}, retryable: true, retryAfter: 7 * time.Second},
		{name: "server error", status: 502, body: `upstream unavailable`, retryable: true, wantContains: "upstream unavailable"},
		{name: "bad request", status: 400, body: `{"error":{"message":"input too long"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewOpenRouterClient(testEmbeddingConfig(server.URL), arbor.NewLogger().WithWriters([]writers.IWriter{}))
			require.NoError(t, err)

			_, err = client.Embed(context.Background(), []string{"text"})
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.misconfig, errors.Is(err, ErrServiceMisconfigured))
			assert.Equal(t, tt.retryAfter, apiErr.RetryAfter)
			if tt.wantContains != "" {
				assert.Contains(t, err.Error(), tt.wantContains)
			}
		})
	}
}

func TestOpenRouter_MalformedResponses(t *testing.T) {
	bodies := map[string]string{
		"count":     `{"data":[{"index":0,"embedding":[1]}]}`,
		"duplicate": `{"data":[{"index":0,"embedding":[1]},{"index":0,"embedding":[2]}]}`,
		"empty":     `{"data":[{"index":0,"embedding":[]},{"index":1,"embedding":[2]}]}`,
		"json":      `not json`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			client, err := NewOpenRouterClient(testEmbeddingConfig(server.URL), arbor.NewLogger().WithWriters([]writers.IWriter{}))
			require.NoError(t, err)

			_, err = client.Embed(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestOpenRouter_BreakerOpensOnRepeatedFailures(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(testEmbeddingConfig(server.URL), arbor.NewLogger().WithWriters([]writers.IWriter{}))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := client.Embed(context.Background(), []string{"text"})
		require.Error(t, err)
	}

	_, err = client.Embed(context.Background(), []string{"text"})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 5, hits)
}

func TestOpenRouter_BadRequestsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(testEmbeddingConfig(server.URL), arbor.NewLogger().WithWriters([]writers.IWriter{}))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := client.Embed(context.Background(), []string{"text"})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
	}
}

func TestNewProvider(t *testing.T) {
	config := testEmbeddingConfig("http://localhost")

	provider, err := NewProvider(context.Background(), config, arbor.NewLogger().WithWriters([]writers.IWriter{}))
	require.NoError(t, err)
	assert.IsType(t, &OpenRouterClient{}, provider)

	config.APIKey = ""
	_, err = NewProvider(context.Background(), config, arbor.NewLogger().WithWriters([]writers.IWriter{}))
	assert.ErrorIs(t, err, ErrServiceMisconfigured)

	config.APIKey = "key"
	config.Provider = "carrier-pigeon"
	_, err = NewProvider(context.Background(), config, arbor.NewLogger().WithWriters([]writers.IWriter{}))
	assert.ErrorIs(t, err, ErrServiceMisconfigured)

	config.Provider = "gemini"
	config.Model = "gemini-embedding-001"
	provider, err = NewProvider(context.Background(), config, arbor.NewLogger().WithWriters([]writers.IWriter{}))
	require.NoError(t, err)
	assert.Equal(t, "gemini-embedding-001", provider.ModelName())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	assert.InDelta(t, float64(time.Minute), float64(parseRetryAfter(future)), float64(2*time.Second))
}
