package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// mockProvider returns a deterministic transcript derived from the file
// name, so downstream stages can be tested without a transcription backend.
type mockProvider struct{}

// NewMock creates a deterministic transcription provider.
func NewMock() Provider {
	return &mockProvider{}
}

func (p *mockProvider) Initialize(ctx context.Context) error {
	return nil
}

func (p *mockProvider) Transcribe(ctx context.Context, audioPath string, onChunk ChunkFunc) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	if onChunk != nil {
		onChunk(0, 1)
	}
	return fmt.Sprintf("mock transcript of %s", filepath.Base(audioPath)), nil
}

func (p *mockProvider) Close() error {
	return nil
}
