package transcribe

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// openaiProvider transcribes audio through an OpenAI-compatible audio API.
// Works against the official Whisper endpoint or a local server exposing the
// same surface.
type openaiProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(endpoint, apiKey, model string) Provider {
	var opts []option.RequestOption
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &openaiProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Initialize is a no-op: there is no cheap probe against an audio endpoint,
// so failures surface on the first transcription instead.
func (p *openaiProvider) Initialize(ctx context.Context) error {
	return nil
}

// Transcribe sends the whole file in one request, so progress is reported
// as a single chunk.
func (p *openaiProvider) Transcribe(ctx context.Context, audioPath string, onChunk ChunkFunc) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	if onChunk != nil {
		onChunk(0, 1)
	}
	resp, err := p.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(p.model),
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe %s: %w", audioPath, err)
	}
	return resp.Text, nil
}

func (p *openaiProvider) Close() error {
	return nil
}
