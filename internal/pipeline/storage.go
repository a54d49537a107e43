package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/queue"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

// storageWorker persists embedded chunks and advances per-source progress.
type storageWorker struct {
	in       *queue.Queue[store.Item]
	index    store.DataSourceMap
	progress *progress.Manager
	metrics  *metrics.Metrics
	keyword  ChunkIndexer
	batch    int
	log      zerolog.Logger
}

// step drains up to one batch and stores it grouped by source.
func (w *storageWorker) step() bool {
	items := w.in.GetMany(w.batch)
	if len(items) == 0 {
		return false
	}
	w.log.Debug().Int("count", len(items)).Msg("received embedded chunks for storage")

	groups := make(map[string][]store.Item)
	for i := range items {
		source := items[i].Meta.Source
		if source == "" {
			w.log.Warn().Msg("dropping embedded chunk without a source")
			continue
		}
		groups[source] = append(groups[source], items[i])
	}

	for source, group := range groups {
		w.store(source, group)
	}
	return true
}

// store persists one source's chunks, registering the source on first
// sight and completing it when the storing phase reaches 100%.
func (w *storageWorker) store(source string, items []store.Item) {
	exists, err := w.index.Exists(source)
	if err != nil {
		w.log.Error().Err(err).Str("source", source).Msg("failed to check source existence")
		return
	}
	if !exists {
		w.log.Debug().Str("source", source).Msg("creating new data source")
		if err := w.index.Create(source, items[0].Meta.SourceType, "", store.StateProcessing); err != nil {
			w.log.Error().Err(err).Str("source", source).Msg("failed to create data source")
			return
		}
	}

	if _, err := w.index.AddBatch(source, items); err != nil {
		w.log.Error().Err(err).Str("source", source).Int("count", len(items)).Msg("failed to store batch")
		return
	}
	w.metrics.ChunksStored.Add(float64(len(items)))

	if w.keyword != nil && source != store.UserQuerySource {
		if err := w.keyword.IndexBatch(items); err != nil {
			w.log.Warn().Err(err).Str("source", source).Msg("failed to mirror chunks into the keyword index")
		}
	}

	w.progress.IncrementPhase(source, progress.PhaseStoring, len(items))
	if pct, ok := w.progress.PhasePercentage(source, progress.PhaseStoring); ok && pct >= 100 {
		w.progress.MarkCompleted(source)
		if err := w.index.SetState(source, store.StateCompleted); err != nil {
			w.log.Error().Err(err).Str("source", source).Msg("failed to mark source completed")
		}
	}
}
