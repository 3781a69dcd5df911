package interfaces

import (
	"context"
)

// EmbeddingProvider turns text into vectors
type EmbeddingProvider interface {
	// Embed returns one vector per input, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName identifies the model recorded alongside stored vectors
	ModelName() string

	Close() error
}
