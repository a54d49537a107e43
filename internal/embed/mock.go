package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// mockProvider generates deterministic embeddings by hashing the input text.
// Identical texts always map to identical vectors, which makes search
// results reproducible in tests and offline runs.
type mockProvider struct {
	dimensions int
}

// NewMock creates a deterministic embedding provider with the given
// dimensionality.
func NewMock(dimensions int) Provider {
	return &mockProvider{dimensions: dimensions}
}

func (p *mockProvider) Initialize(ctx context.Context) error {
	return nil
}

func (p *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		hash := sha256.Sum256([]byte(text))

		embedding := make([]float32, p.dimensions)
		for j := 0; j < p.dimensions; j++ {
			offset := (j * 4) % len(hash)
			val := binary.BigEndian.Uint32(hash[offset : offset+4])
			// Normalize to [-1, 1] range
			embedding[j] = (float32(val)/float32(1<<32))*2.0 - 1.0
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

func (p *mockProvider) Dimensions() int {
	return p.dimensions
}

func (p *mockProvider) Close() error {
	return nil
}
