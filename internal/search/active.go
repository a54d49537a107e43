package search

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/store"
)

// ActiveSources is the set of sources searches are scoped to. While the set
// is empty every source is searched.
type ActiveSources struct {
	index store.DataSourceMap
	log   zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func NewActiveSources(index store.DataSourceMap, log zerolog.Logger) *ActiveSources {
	return &ActiveSources{
		index:  index,
		log:    log.With().Str("component", "active-sources").Logger(),
		active: make(map[string]struct{}),
	}
}

// Activate adds the given sources to the active set. Sources that are not
// registered are logged and skipped. Returns the resulting set.
func (a *ActiveSources) Activate(sources []string) ([]string, error) {
	known, err := a.index.ListSources()
	if err != nil {
		return nil, err
	}
	registered := make(map[string]struct{}, len(known))
	for _, src := range known {
		registered[src] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, src := range sources {
		if _, ok := registered[src]; !ok {
			a.log.Warn().Str("source", src).Msg("cannot activate unknown data source")
			continue
		}
		a.active[src] = struct{}{}
	}
	return a.listLocked(), nil
}

// Deactivate removes the given sources from the active set and returns the
// resulting set.
func (a *ActiveSources) Deactivate(sources []string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, src := range sources {
		delete(a.active, src)
	}
	return a.listLocked()
}

// List returns the active sources sorted by path.
func (a *ActiveSources) List() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listLocked()
}

// Filter returns the active set as a search filter, nil when every source
// should be searched.
func (a *ActiveSources) Filter() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.active) == 0 {
		return nil
	}
	return a.listLocked()
}

func (a *ActiveSources) listLocked() []string {
	out := make([]string, 0, len(a.active))
	for src := range a.active {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}
