// Package embed turns text into vectors through pluggable providers.
package embed

import "context"

// Provider defines the interface for embedding text into vectors.
// Query text and document passages go through the same provider; the
// pipeline does not distinguish them.
type Provider interface {
	// Initialize prepares the provider and blocks until it is usable.
	// For remote providers this verifies endpoint, credentials and model.
	// Must be called before Embed().
	Initialize(ctx context.Context) error

	// Embed converts texts into vectors, one per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of the produced vectors.
	Dimensions() int

	// Close releases any resources held by the provider.
	Close() error
}
