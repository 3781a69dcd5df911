package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/interfaces"
)

// NewProvider builds the embedding provider named by embedding.provider
func NewProvider(ctx context.Context, config *common.EmbeddingConfig, logger arbor.ILogger) (interfaces.EmbeddingProvider, error) {
	switch strings.ToLower(config.Provider) {
	case "openrouter":
		var opts []Option
		if config.UserAgent != "" {
			opts = append(opts, WithUserAgent(config.UserAgent))
		}
		return NewOpenRouterClient(config, logger, opts...)
	case "gemini":
		return NewGeminiProvider(ctx, config, logger)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrServiceMisconfigured, config.Provider)
	}
}
