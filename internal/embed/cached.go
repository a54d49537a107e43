package embed

import (
	"context"
	"fmt"

	"github.com/maypok86/otter"
)

// CachedProvider memoizes embeddings by exact text. Re-ingesting unchanged
// files and repeating queries skip the provider round trip.
type CachedProvider struct {
	inner Provider
	cache otter.Cache[string, []float32]
}

// NewCached wraps inner with an in-memory cache holding up to capacity
// embeddings.
func NewCached(inner Provider, capacity int) (*CachedProvider, error) {
	cache, err := otter.MustBuilder[string, []float32](capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func (p *CachedProvider) Initialize(ctx context.Context) error {
	return p.inner.Initialize(ctx)
}

// Embed serves cached texts locally and forwards only the misses, keeping
// input order in the result.
func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		missing    []string
		missingIdx []int
	)
	for i, text := range texts {
		if vec, ok := p.cache.Get(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := p.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(missing), len(vecs))
	}
	for i, vec := range vecs {
		out[missingIdx[i]] = vec
		p.cache.Set(missing[i], vec)
	}
	return out, nil
}

func (p *CachedProvider) Dimensions() int {
	return p.inner.Dimensions()
}

func (p *CachedProvider) Close() error {
	p.cache.Close()
	return p.inner.Close()
}
