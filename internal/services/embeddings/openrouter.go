package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/Vogeltak/reading-addiction/internal/common"
)

// OpenRouterClient calls an OpenAI-compatible /embeddings endpoint (OpenRouter by default).
// Requests are rate limited client side and pass through a circuit breaker so a failing
// endpoint is not hammered by every worker at once.
type OpenRouterClient struct {
	baseURL    string
	apiKey     string
	model      string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     arbor.ILogger
}

// Option customizes an OpenRouterClient
type Option func(*OpenRouterClient)

// WithHTTPClient replaces the HTTP client, mainly for tests
func WithHTTPClient(client *http.Client) Option {
	return func(c *OpenRouterClient) {
		c.httpClient = client
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(userAgent string) Option {
	return func(c *OpenRouterClient) {
		c.userAgent = userAgent
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string    `json:"model"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

// NewOpenRouterClient creates a client from the embedding section of the configuration
func NewOpenRouterClient(config *common.EmbeddingConfig, logger arbor.ILogger, opts ...Option) (*OpenRouterClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key (set OPENROUTER_API_KEY or embedding.api_key)", ErrServiceMisconfigured)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: no embedding model configured", ErrServiceMisconfigured)
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := max(1, config.Concurrency)

	client := &OpenRouterClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		model:      config.Model,
		userAgent:  "reading-addiction/" + common.GetVersion(),
		httpClient: &http.Client{Timeout: config.Timeout.Std()},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}

	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embeddings",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only transient failures count against the endpoint; a bad request is the caller's problem
		IsSuccessful: func(err error) bool {
			return !IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Embedding circuit breaker state changed")
		},
	})

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// ModelName returns the configured model identifier
func (c *OpenRouterClient) ModelName() string {
	return c.model
}

// Close releases idle connections
func (c *OpenRouterClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Embed requests one vector per text; the result is ordered like texts
func (c *OpenRouterClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

func (c *OpenRouterClient) post(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	// Some gateways report upstream failures inside a 200 response
	if decoded.Error != nil {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Message: decoded.Error.Message}
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(decoded.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(texts) || vectors[item.Index] != nil {
			return nil, fmt.Errorf("embedding response has invalid index %d", item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("embedding response has an empty vector at index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}

	c.logger.Debug().
		Int("inputs", len(texts)).
		Int("dimension", len(vectors[0])).
		Dur("duration", time.Since(start)).
		Msg("Embedding batch completed")

	return vectors, nil
}

func errorMessage(body []byte) string {
	var decoded struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	message := strings.TrimSpace(string(body))
	if len(message) > 200 {
		message = message[:200]
	}
	return message
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
