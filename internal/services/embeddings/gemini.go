package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/Vogeltak/reading-addiction/internal/common"
)

// GeminiProvider embeds text with the Gemini API
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    arbor.ILogger
}

// NewGeminiProvider creates a Gemini embedding provider
func NewGeminiProvider(ctx context.Context, config *common.EmbeddingConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key (set GEMINI_API_KEY or embedding.api_key)", ErrServiceMisconfigured)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: no embedding model configured", ErrServiceMisconfigured)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	logger.Debug().
		Str("model", config.Model).
		Int("dimension", config.Dimension).
		Msg("Gemini embedding provider initialized")

	return &GeminiProvider{
		client:    client,
		model:     config.Model,
		dimension: config.Dimension,
		timeout:   config.Timeout.Std(),
		limiter:   rate.NewLimiter(limit, max(1, config.Concurrency)),
		logger:    logger,
	}, nil
}

// ModelName returns the configured model identifier
func (p *GeminiProvider) ModelName() string {
	return p.model
}

// Close is a no-op, genai.Client holds no resources that need releasing
func (p *GeminiProvider) Close() error {
	return nil
}

// Embed requests one vector per text in a single EmbedContent call
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	embedConfig := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if p.dimension > 0 {
		outputDim := int32(p.dimension)
		embedConfig.OutputDimensionality = &outputDim
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, embedConfig)
	if err != nil {
		return nil, fromGenaiError(err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", got, len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, embedding := range result.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, fmt.Errorf("embedding response has an empty vector at index %d", i)
		}
		vectors[i] = embedding.Values
	}
	return vectors, nil
}

// fromGenaiError maps genai API errors onto APIError so retry and fatal handling match other providers
func fromGenaiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("gemini embedding failed: %w", err)
}
