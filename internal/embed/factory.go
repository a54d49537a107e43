package embed

import "fmt"

// Config contains configuration for creating an embedding provider.
type Config struct {
	// Provider selects the implementation ("openai" or "mock").
	Provider string

	// Endpoint is the base URL of an OpenAI-compatible API. Empty means
	// the official OpenAI endpoint.
	Endpoint string

	// APIKey authenticates against the endpoint. Local servers usually
	// accept an empty key.
	APIKey string

	// Model names the embedding model to request.
	Model string

	// Dimensions is the expected vector size. Providers fail fast when
	// the model disagrees.
	Dimensions int

	// CacheSize caps the embedding memo cache. Zero disables caching.
	CacheSize int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", cfg.Dimensions)
	}

	var provider Provider
	switch cfg.Provider {
	case "openai", "": // empty defaults to openai
		provider = newOpenAIProvider(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "mock":
		provider = NewMock(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: openai, mock)", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		return NewCached(provider, cfg.CacheSize)
	}
	return provider, nil
}
