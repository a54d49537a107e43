package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
)

// docMetaKey is the chromem document metadata key holding the JSON-encoded Meta.
const docMetaKey = "meta"

// MemoryMap keeps collections and vectors in process memory using chromem-go,
// one chromem collection per source. It backs tests and ephemeral runs where
// no database file is wanted.
//
// chromem reports cosine similarity, so distances here are 1 - similarity.
// Rankings are comparable to the SQLite backend, absolute values are not.
type MemoryMap struct {
	db  *chromem.DB
	dim int
	log zerolog.Logger

	mu      sync.RWMutex
	sources map[string]*sourceInfo
}

type sourceInfo struct {
	id         string
	sourceType string
	sourceName string
	status     State
}

var _ DataSourceMap = (*MemoryMap)(nil)

// NewMemory creates an empty in-memory store for vectors of dim dimensions.
func NewMemory(dim int, log zerolog.Logger) *MemoryMap {
	return &MemoryMap{
		db:      chromem.NewDB(),
		dim:     dim,
		log:     log,
		sources: make(map[string]*sourceInfo),
	}
}

func (m *MemoryMap) Create(source, sourceType, sourceName string, status State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[source]; ok {
		return nil
	}
	if _, err := m.db.CreateCollection(source, nil, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", source, err)
	}
	m.sources[source] = &sourceInfo{
		id:         uuid.New().String(),
		sourceType: sourceType,
		sourceName: sourceName,
		status:     status,
	}
	return nil
}

func (m *MemoryMap) Delete(source string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[source]; !ok {
		return false, nil
	}
	if err := m.db.DeleteCollection(source); err != nil {
		return false, fmt.Errorf("failed to delete collection %s: %w", source, err)
	}
	delete(m.sources, source)
	return true, nil
}

func (m *MemoryMap) DeleteByName(sourceName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for src, info := range m.sources {
		if info.sourceName != sourceName {
			continue
		}
		if err := m.db.DeleteCollection(src); err != nil {
			return found, fmt.Errorf("failed to delete collection %s: %w", src, err)
		}
		delete(m.sources, src)
		found = true
	}
	return found, nil
}

func (m *MemoryMap) Exists(source string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sources[source]
	return ok, nil
}

func (m *MemoryMap) GetByID(id, source string) (*Item, error) {
	for _, src := range m.memTargets(nil, true) {
		if source != "" && src != source {
			continue
		}
		c := m.db.GetCollection(src, nil)
		if c == nil {
			continue
		}
		doc, err := c.GetByID(context.Background(), id)
		if err != nil {
			// chromem only errors on unknown ids.
			continue
		}
		meta, err := decodeDocMeta(doc.ID, doc.Metadata)
		if err != nil {
			return nil, err
		}
		return &Item{Text: doc.Content, Meta: meta, Vector: doc.Embedding}, nil
	}
	return nil, nil
}

func (m *MemoryMap) ListSources() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make([]string, 0, len(m.sources))
	for src := range m.sources {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources, nil
}

func (m *MemoryMap) SourcesStats() (map[string]Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.sources))
	for src, info := range m.sources {
		stats[src] = Stats{
			SourceName:  info.sourceName,
			SourcePath:  src,
			Status:      info.status,
			VectorCount: m.countLocked(src),
			Dimension:   m.dim,
		}
	}
	return stats, nil
}

func (m *MemoryMap) SourceStats(source string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.sources[source]
	if !ok {
		return Stats{SourcePath: source, Status: StateNotFound}, nil
	}
	return Stats{
		SourceName:  info.sourceName,
		SourcePath:  source,
		Status:      info.status,
		VectorCount: m.countLocked(source),
		Dimension:   m.dim,
	}, nil
}

func (m *MemoryMap) SourceStatsByName(sourceName string) ([]Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sources []string
	for src, info := range m.sources {
		if info.sourceName == sourceName {
			sources = append(sources, src)
		}
	}
	sort.Strings(sources)

	stats := make([]Stats, 0, len(sources))
	for _, src := range sources {
		info := m.sources[src]
		stats = append(stats, Stats{
			SourceName:  info.sourceName,
			SourcePath:  src,
			Status:      info.status,
			VectorCount: m.countLocked(src),
			Dimension:   m.dim,
		})
	}
	return stats, nil
}

func (m *MemoryMap) Search(queryVec []float32, sources []string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	ctx := context.Background()
	var results []Result
	for _, src := range m.memTargets(sources, false) {
		c := m.db.GetCollection(src, nil)
		if c == nil {
			continue
		}
		// chromem rejects nResults above the collection size.
		n := k
		if count := c.Count(); count < n {
			n = count
		}
		if n == 0 {
			continue
		}
		docs, err := c.QueryEmbedding(ctx, queryVec, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query collection %s: %w", src, err)
		}
		for _, doc := range docs {
			meta, err := decodeDocMeta(doc.ID, doc.Metadata)
			if err != nil {
				return nil, err
			}
			results = append(results, Result{
				Item:     Item{Text: doc.Content, Meta: meta},
				Distance: 1 - float64(doc.Similarity),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryMap) RelevantSources(queryVec []float32, limit int, threshold float64, sources []string) ([]RelevantSource, error) {
	ctx := context.Background()
	var relevant []RelevantSource
	for _, src := range m.memTargets(sources, false) {
		c := m.db.GetCollection(src, nil)
		if c == nil {
			continue
		}
		n := c.Count()
		if n == 0 {
			continue
		}
		if n > relevantSourcesK {
			n = relevantSourcesK
		}
		docs, err := c.QueryEmbedding(ctx, queryVec, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query collection %s: %w", src, err)
		}

		var (
			count    int
			min, sum float64
		)
		for _, doc := range docs {
			d := 1 - float64(doc.Similarity)
			if d >= threshold {
				continue
			}
			if count == 0 || d < min {
				min = d
			}
			sum += d
			count++
		}
		if count == 0 {
			continue
		}
		relevant = append(relevant, RelevantSource{
			Collection:  src,
			MinDistance: min,
			AvgDistance: sum / float64(count),
			Count:       count,
		})
	}

	sort.Slice(relevant, func(i, j int) bool { return relevant[i].MinDistance < relevant[j].MinDistance })
	if limit > 0 && len(relevant) > limit {
		relevant = relevant[:limit]
	}
	return relevant, nil
}

// memTargets snapshots the collections a query may touch. The user-query
// collection only participates when includeUserQuery is set (item lookups).
func (m *MemoryMap) memTargets(sources []string, includeUserQuery bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(sources) == 0 {
		sources = make([]string, 0, len(m.sources))
		for src := range m.sources {
			sources = append(sources, src)
		}
		sort.Strings(sources)
	}
	targets := make([]string, 0, len(sources))
	for _, src := range sources {
		if src == UserQuerySource && !includeUserQuery {
			continue
		}
		if _, ok := m.sources[src]; !ok {
			continue
		}
		targets = append(targets, src)
	}
	return targets
}

func (m *MemoryMap) AddBatch(source string, items []Item) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	_, registered := m.sources[source]
	m.mu.RUnlock()
	if !registered {
		return nil, fmt.Errorf("collection %s is not registered", source)
	}
	c := m.db.GetCollection(source, nil)
	if c == nil {
		return nil, fmt.Errorf("collection %s is not registered", source)
	}

	ctx := context.Background()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		meta := item.Meta
		if meta.ID == "" {
			meta.ID = uuid.New().String()
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata for %s: %w", meta.ID, err)
		}
		doc := chromem.Document{
			ID:        meta.ID,
			Content:   item.Text,
			Embedding: item.Vector,
			Metadata:  map[string]string{docMetaKey: string(metaJSON)},
		}
		if err := c.AddDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to store embedding %s: %w", meta.ID, err)
		}
		ids = append(ids, meta.ID)
	}
	return ids, nil
}

func (m *MemoryMap) SetState(source string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.sources[source]; ok {
		info.status = state
	}
	return nil
}

// DeleteEmbeddings drops and recreates the chromem collections so the
// sources stay registered with their states intact.
func (m *MemoryMap) DeleteEmbeddings(source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for src := range m.sources {
		if source != "" && src != source {
			continue
		}
		c := m.db.GetCollection(src, nil)
		if c == nil {
			continue
		}
		n := c.Count()
		if n == 0 {
			continue
		}
		if err := m.db.DeleteCollection(src); err != nil {
			return removed, fmt.Errorf("failed to reset collection %s: %w", src, err)
		}
		if _, err := m.db.CreateCollection(src, nil, nil); err != nil {
			return removed, fmt.Errorf("failed to recreate collection %s: %w", src, err)
		}
		removed += n
	}
	return removed, nil
}

func (m *MemoryMap) Close() error {
	return nil
}

func (m *MemoryMap) countLocked(source string) int {
	c := m.db.GetCollection(source, nil)
	if c == nil {
		return 0
	}
	return c.Count()
}

func decodeDocMeta(id string, metadata map[string]string) (Meta, error) {
	var meta Meta
	raw, ok := metadata[docMetaKey]
	if !ok {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return meta, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
	}
	return meta, nil
}
