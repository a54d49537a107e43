package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/queue"
	"github.com/mvp-joe/mcp-brag/internal/readers"
	"github.com/mvp-joe/mcp-brag/internal/store"
	"github.com/mvp-joe/mcp-brag/internal/transcribe"
)

// transcriptionWorker turns queued audio tasks into transcript files and
// feeds the transcript chunks to the embedding worker.
type transcriptionWorker struct {
	ctx      context.Context
	in       *queue.Queue[TranscriptionTask]
	out      *queue.Queue[store.Item]
	provider transcribe.Provider
	progress *progress.Manager
	metrics  *metrics.Metrics
	dir      string
	chunkMax int
	log      zerolog.Logger
}

func (w *transcriptionWorker) step() bool {
	task, ok := w.in.GetOne()
	if !ok {
		return false
	}

	if err := w.process(task); err != nil {
		w.metrics.TranscriptionFailures.Inc()
		w.log.Error().Err(err).Str("source", task.Source).Msg("transcription failed")
		w.progress.MarkFailed(task.Source)
	}
	return true
}

func (w *transcriptionWorker) process(task TranscriptionTask) error {
	w.progress.AddPhase(task.Source, progress.PhaseTranscription, true)
	w.progress.SetPhaseTotal(task.Source, progress.PhaseTranscription, 1)

	transcript, err := w.provider.Transcribe(w.ctx, task.AudioPath, func(current, total int) {
		w.progress.SetPhaseProgress(task.Source, progress.PhaseTranscription, current)
		w.progress.SetPhaseTotal(task.Source, progress.PhaseTranscription, total)
	})
	if err != nil {
		return fmt.Errorf("failed to transcribe %s: %w", task.AudioPath, err)
	}

	transcriptPath, err := w.writeTranscript(task.ID, transcript)
	if err != nil {
		return err
	}

	if task.DeleteAudioFolder && task.AudioFolderPath != "" {
		w.log.Debug().Str("folder", task.AudioFolderPath).Msg("deleting audio folder")
		if err := os.RemoveAll(task.AudioFolderPath); err != nil {
			w.log.Warn().Err(err).Str("folder", task.AudioFolderPath).Msg("failed to delete audio folder")
		}
	}

	w.progress.IncrementPhase(task.Source, progress.PhaseTranscription, 1)
	w.metrics.Transcriptions.Inc()

	return w.enqueueTranscript(task, transcriptPath)
}

func (w *transcriptionWorker) writeTranscript(id, transcript string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create transcription dir: %w", err)
	}
	path := filepath.Join(w.dir, id+".txt")
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}

// enqueueTranscript chunks the transcript and submits it for embedding
// under the task's original source.
func (w *transcriptionWorker) enqueueTranscript(task TranscriptionTask, transcriptPath string) error {
	chunks, err := readers.NewTextReader(transcriptPath, w.chunkMax).Chunks()
	if err != nil {
		return fmt.Errorf("failed to chunk transcript: %w", err)
	}

	w.progress.AddPhase(task.Source, progress.PhaseEmbedding, true)

	if len(chunks) == 0 {
		// An empty transcript leaves nothing to embed; the source is done.
		w.progress.MarkCompleted(task.Source)
		return nil
	}

	items := make([]store.Item, 0, len(chunks))
	for _, chunk := range chunks {
		meta := task.Meta
		meta.ID = uuid.New().String()
		meta.Source = task.Source
		meta.SourceType = string(task.SourceType)
		meta.StartIndex = chunk.StartIndex
		meta.EndIndex = chunk.EndIndex
		meta.Text = chunk.Text
		meta.TranscriptionPath = transcriptPath
		items = append(items, store.Item{Text: chunk.Text, Meta: meta, SourceID: task.Source})
	}

	w.progress.SetPhaseTotal(task.Source, progress.PhaseEmbedding, len(items))
	w.progress.SetPhaseTotal(task.Source, progress.PhaseStoring, len(items))
	return w.out.PutMany(items)
}
