package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// openaiProvider embeds text through an OpenAI-compatible embeddings API.
// Local servers (llama.cpp, LM Studio, Ollama) expose the same surface, so
// pointing the endpoint at one of them needs no other changes.
//
// The provider never requests a dimension from the API; it verifies that the
// model's native dimensionality matches the configured one, which also works
// for servers that ignore the dimensions parameter.
type openaiProvider struct {
	client     openai.Client
	model      string
	dimensions int
}

func newOpenAIProvider(endpoint, apiKey, model string, dimensions int) Provider {
	var opts []option.RequestOption
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &openaiProvider{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dimensions,
	}
}

// Initialize embeds one probe text, verifying endpoint, credentials, model
// and dimensionality in a single round trip.
func (p *openaiProvider) Initialize(ctx context.Context) error {
	if _, err := p.Embed(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("embedding provider not ready: %w", err)
	}
	return nil
}

func (p *openaiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(p.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != p.dimensions {
			return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", p.model, len(d.Embedding), p.dimensions)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func (p *openaiProvider) Dimensions() int {
	return p.dimensions
}

func (p *openaiProvider) Close() error {
	return nil
}
