package models

import (
	"fmt"
)

// Chunk is one embedded slice of an article's text
type Chunk struct {
	ID         string
	ArticleURL string `badgerhold:"index"`
	Index      int
	Text       string
	Vector     []float32
}

// ChunkID keys a chunk so an article's chunks sort by index
func ChunkID(articleURL string, index int) string {
	return fmt.Sprintf("%s#%05d", articleURL, index)
}

// DocumentVector is the exported per-article embedding
type DocumentVector struct {
	URL    string    `json:"url"`
	Vector []float32 `json:"vector"`
}

// MeanVector averages vectors element-wise. Accumulation is float64 so the result
// does not depend on chunk order beyond float32 rounding.
func MeanVector(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}

	sum := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for j, x := range v {
			sum[j] += float64(x)
		}
	}

	mean := make([]float32, dim)
	n := float64(len(vectors))
	for j := range sum {
		mean[j] = float32(sum[j] / n)
	}
	return mean, nil
}
