// Package watch re-ingests file-backed sources when they change on disk.
//
// Sources whose identifier resolves to a regular file are tracked through
// watches on their parent directories, which survive the rename-and-replace
// saves editors do. URL-backed sources never resolve to a path and are
// skipped. Change events debounce into one re-ingestion per file; removals
// mark the source failed until the file reappears.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/store"
)

// rescanInterval bounds how long a freshly ingested source can go
// unwatched.
const rescanInterval = 5 * time.Second

// Ingestor is the slice of the ingestion coordinator the watcher drives.
type Ingestor interface {
	ProcessFiles(paths []string, sourceName string)
}

// Watcher tracks file-backed sources and re-ingests them on change.
type Watcher struct {
	index    store.DataSourceMap
	ingest   Ingestor
	debounce time.Duration
	log      zerolog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	tracked map[string]string   // file path -> source name
	dirs    map[string]int      // watched dir -> tracked files inside it
	pending map[string]struct{} // changed paths awaiting the debounce flush
	timer   *time.Timer

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a watcher over every file-backed source in the index.
func New(index store.DataSourceMap, ing Ingestor, debounce time.Duration, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		index:    index,
		ingest:   ing,
		debounce: debounce,
		log:      log.With().Str("component", "watch").Logger(),
		fsw:      fsw,
		tracked:  make(map[string]string),
		dirs:     make(map[string]int),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	w.rescan()
	return w, nil
}

// Start runs the event loop until the context is canceled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		} else {
			close(w.done)
		}
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	flushCh := make(chan struct{}, 1)
	rescan := time.NewTicker(rescanInterval)
	defer rescan.Stop()

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event, flushCh)

		case <-flushCh:
			w.flush()

		case <-rescan.C:
			w.rescan()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, flushCh chan struct{}) {
	w.mu.Lock()
	_, tracked := w.tracked[event.Name]
	w.mu.Unlock()
	if !tracked {
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.mu.Lock()
		w.pending[event.Name] = struct{}{}
		w.mu.Unlock()
		w.resetTimer(flushCh)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The entry stays tracked: if the file reappears, the create
		// event re-ingests it.
		w.log.Warn().Str("source", event.Name).Msg("watched file removed, marking source failed")
		if err := w.index.SetState(event.Name, store.StateFailed); err != nil {
			w.log.Warn().Err(err).Str("source", event.Name).Msg("failed to mark source failed")
		}
	}
}

// flush re-ingests every path accumulated during the debounce window.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	changed := make(map[string]string, len(w.pending))
	for path := range w.pending {
		changed[path] = w.tracked[path]
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for path, sourceName := range changed {
		w.log.Info().Str("source", path).Msg("re-ingesting changed file")
		w.ingest.ProcessFiles([]string{path}, sourceName)
	}
}

// rescan reconciles the tracked set with the index: file-backed sources
// gain watches, sources deleted from the index lose them.
func (w *Watcher) rescan() {
	sources, err := w.index.ListSources()
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to list sources")
		return
	}

	inIndex := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		if src == store.UserQuerySource {
			continue
		}
		inIndex[src] = struct{}{}
		if info, err := os.Stat(src); err != nil || info.IsDir() {
			continue
		}
		w.track(src)
	}

	w.mu.Lock()
	var dropped []string
	for path := range w.tracked {
		if _, ok := inIndex[path]; !ok {
			dropped = append(dropped, path)
		}
	}
	w.mu.Unlock()
	for _, path := range dropped {
		w.untrack(path)
	}
}

func (w *Watcher) track(path string) {
	stats, err := w.index.SourceStats(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[path]; ok {
		// Reprocessing may have renamed the source.
		w.tracked[path] = stats.SourceName
		return
	}

	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			w.log.Warn().Err(err).Str("dir", dir).Msg("failed to watch directory")
			return
		}
	}
	w.dirs[dir]++
	w.tracked[path] = stats.SourceName
	w.log.Debug().Str("source", path).Msg("watching source file")
}

func (w *Watcher) untrack(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[path]; !ok {
		return
	}
	delete(w.tracked, path)
	delete(w.pending, path)

	dir := filepath.Dir(path)
	if w.dirs[dir]--; w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.fsw.Remove(dir); err != nil {
			w.log.Debug().Err(err).Str("dir", dir).Msg("failed to unwatch directory")
		}
	}
	w.log.Debug().Str("source", path).Msg("stopped watching source file")
}

func (w *Watcher) resetTimer(flushCh chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case flushCh <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
