package transcribe

import "fmt"

// Config contains configuration for creating a transcription provider.
type Config struct {
	// Provider selects the implementation ("openai" or "mock").
	Provider string

	// Endpoint is the base URL of an OpenAI-compatible audio API. Empty
	// means the official OpenAI endpoint.
	Endpoint string

	// APIKey authenticates against the endpoint.
	APIKey string

	// Model names the transcription model to request.
	Model string
}

// NewProvider creates a transcription provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai", "": // empty defaults to openai
		return newOpenAIProvider(cfg.Endpoint, cfg.APIKey, cfg.Model), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s (supported: openai, mock)", cfg.Provider)
	}
}
