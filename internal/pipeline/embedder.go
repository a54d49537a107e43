package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/embed"
	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/queue"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

// embedWorker drains the read queue in batches and vectorizes them.
type embedWorker struct {
	ctx      context.Context
	in       *queue.Queue[store.Item]
	out      *queue.Queue[store.Item]
	provider embed.Provider
	progress *progress.Manager
	metrics  *metrics.Metrics
	batch    int
	log      zerolog.Logger
}

// step vectorizes one batch and hands it to storage. A provider failure
// drops the whole batch; the worker stays alive.
func (w *embedWorker) step() bool {
	if w.in.Len() == 0 {
		return false
	}
	items := w.in.GetMany(w.batch)
	if len(items) == 0 {
		return false
	}
	w.log.Debug().Int("batch_size", len(items)).Msg("embedding batch")

	texts := make([]string, len(items))
	for i := range items {
		texts[i] = items[i].Text
	}

	vectors, err := w.provider.Embed(w.ctx, texts)
	if err != nil {
		w.metrics.EmbedFailures.Inc()
		w.log.Error().Err(err).Int("batch_size", len(items)).Msg("failed to embed batch, dropping it")
		return true
	}
	for i := range items {
		items[i].Vector = vectors[i]
	}

	for sourceID, count := range countBySourceID(items) {
		w.progress.IncrementPhase(sourceID, progress.PhaseEmbedding, count)
	}

	if err := w.out.PutMany(items); err != nil {
		w.log.Error().Err(err).Int("batch_size", len(items)).Msg("failed to queue embedded batch for storage")
		return true
	}

	w.metrics.EmbedBatches.Inc()
	w.metrics.ChunksEmbedded.Add(float64(len(items)))
	return true
}

// countBySourceID groups a batch's progress increments. Items without a
// source id are skipped.
func countBySourceID(items []store.Item) map[string]int {
	counts := make(map[string]int)
	for i := range items {
		if items[i].SourceID == "" {
			continue
		}
		counts[items[i].SourceID]++
	}
	return counts
}
