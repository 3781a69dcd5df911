package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanVector(t *testing.T) {
	mean, err := MeanVector([][]float32{
		{1, 2, 3},
		{3, 4, 5},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4}, mean)
}

func TestMeanVector_Single(t *testing.T) {
	mean, err := MeanVector([][]float32{{0.5, -0.25}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, mean)
}

func TestMeanVector_OrderIndependent(t *testing.T) {
	a := []float32{0.1, 0.7, -0.3}
	b := []float32{0.4, -0.2, 0.9}
	c := []float32{-0.6, 0.3, 0.05}

	m1, err := MeanVector([][]float32{a, b, c})
	require.NoError(t, err)
	m2, err := MeanVector([][]float32{c, a, b})
	require.NoError(t, err)

	assert.InDeltaSlice(t, m1, m2, 1e-6)
}

func TestMeanVector_Empty(t *testing.T) {
	mean, err := MeanVector(nil)
	require.NoError(t, err)
	assert.Nil(t, mean)
}

func TestMeanVector_DimensionMismatch(t *testing.T) {
	_, err := MeanVector([][]float32{{1, 2}, {1, 2, 3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChunkID_SortsByIndex(t *testing.T) {
	assert.Equal(t, "https://a/#00003", ChunkID("https://a/", 3))
	assert.Less(t, ChunkID("https://a/", 9), ChunkID("https://a/", 10))
}
