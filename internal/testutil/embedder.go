package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// FakeEmbedder produces deterministic unit vectors derived from the input
// text, so similarity comparisons behave consistently across test runs
// without calling a real embedding API. Identical texts map to identical
// vectors.
type FakeEmbedder struct {
	Dims int
}

// NewFakeEmbedder returns a FakeEmbedder with the given dimensionality.
func NewFakeEmbedder(dims int) *FakeEmbedder {
	return &FakeEmbedder{Dims: dims}
}

func (f *FakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, f.Dims)
	var norm float64
	for i := range vec {
		// Stretch the 32 hash bytes across the full vector.
		seed := binary.BigEndian.Uint32(sum[(i*4)%28 : (i*4)%28+4])
		v := float64(seed%1000)/500.0 - 1.0 + float64(i%7)*0.01
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// CreateEmbeddings implements the batch embedding API shape.
func (f *FakeEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *FakeEmbedder) Dimensions() int {
	return f.Dims
}
