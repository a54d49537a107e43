// Package transcribe converts audio files to text through pluggable
// providers.
package transcribe

import "context"

// ChunkFunc receives transcription progress as the zero-based index of the
// chunk being worked on and the total chunk count. Providers that work
// through audio in segments call it once per segment; single-shot providers
// call it once with (0, 1).
type ChunkFunc func(current, total int)

// Provider defines the interface for audio transcription.
type Provider interface {
	// Initialize prepares the provider. Must be called before Transcribe().
	Initialize(ctx context.Context) error

	// Transcribe returns the transcript of the audio file at audioPath.
	// onChunk may be nil when the caller does not track progress.
	Transcribe(ctx context.Context, audioPath string, onChunk ChunkFunc) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
