package store

// Test Plan for MemoryMap:
// - Create registers a collection once and is idempotent
// - Delete reports whether the collection existed
// - DeleteByName removes every collection sharing a source name
// - AddBatch keeps provided ids and assigns fresh ones otherwise
// - AddBatch rejects unregistered collections
// - Search orders results by ascending distance across collections
// - Search never touches the user-query collection
// - Search honors an explicit source filter
// - RelevantSources aggregates min/avg/count below the threshold
// - DeleteEmbeddings wipes vectors but keeps registrations and states
// - SourceStats reports not_found for unknown collections
// - GetByID honors the optional source filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/mcp-brag/internal/logging"
)

const testSourceType = "LOCAL_TEXT_FILE"

func TestMemoryCreate(t *testing.T) {
	t.Parallel()

	t.Run("registers a collection once", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		require.NoError(t, m.Create("a.txt", testSourceType, "", StateProcessing))
		require.NoError(t, m.Create("a.txt", testSourceType, "", StateCompleted))

		ok, err := m.Exists("a.txt")
		require.NoError(t, err)
		assert.True(t, ok)

		// The second Create must not reset the original registration.
		stats, err := m.SourceStats("a.txt")
		require.NoError(t, err)
		assert.Equal(t, StateProcessing, stats.Status)
	})
}

func TestMemoryDelete(t *testing.T) {
	t.Parallel()

	t.Run("reports whether the collection existed", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		require.NoError(t, m.Create("a.txt", testSourceType, "", StateCompleted))

		found, err := m.Delete("a.txt")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = m.Delete("a.txt")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("removes vectors with the collection", func(t *testing.T) {
		t.Parallel()

		m := newMemoryWithDocs(t, "a.txt", []float32{1, 0, 0})
		_, err := m.Delete("a.txt")
		require.NoError(t, err)

		results, err := m.Search([]float32{1, 0, 0}, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestMemoryDeleteByName(t *testing.T) {
	t.Parallel()

	t.Run("removes every collection sharing the name", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		require.NoError(t, m.Create("dir/a.txt", testSourceType, "dir", StateCompleted))
		require.NoError(t, m.Create("dir/b.txt", testSourceType, "dir", StateCompleted))
		require.NoError(t, m.Create("c.txt", testSourceType, "", StateCompleted))

		found, err := m.DeleteByName("dir")
		require.NoError(t, err)
		assert.True(t, found)

		sources, err := m.ListSources()
		require.NoError(t, err)
		assert.Equal(t, []string{"c.txt"}, sources)
	})

	t.Run("reports false for unknown names", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		found, err := m.DeleteByName("nope")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestMemoryAddBatch(t *testing.T) {
	t.Parallel()

	t.Run("keeps provided ids and assigns missing ones", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		require.NoError(t, m.Create("a.txt", testSourceType, "", StateProcessing))

		ids, err := m.AddBatch("a.txt", []Item{
			{Text: "first", Meta: Meta{ID: "fixed-id", Source: "a.txt"}, Vector: []float32{1, 0, 0}},
			{Text: "second", Meta: Meta{Source: "a.txt"}, Vector: []float32{0, 1, 0}},
		})
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.Equal(t, "fixed-id", ids[0])
		assert.NotEmpty(t, ids[1])
		assert.NotEqual(t, ids[0], ids[1])

		item, err := m.GetByID(ids[1], "")
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, ids[1], item.Meta.ID)
		assert.Equal(t, "second", item.Text)
	})

	t.Run("rejects unregistered collections", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		_, err := m.AddBatch("ghost.txt", []Item{{Text: "x", Vector: []float32{1, 0, 0}}})
		require.Error(t, err)
	})
}

func TestMemorySearch(t *testing.T) {
	t.Parallel()

	t.Run("orders by ascending distance across collections", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "a.txt", map[string][]float32{
			"exact": {1, 0, 0},
			"far":   {0, 1, 0},
		})
		addDocs(t, m, "b.txt", map[string][]float32{
			"near": {0.6, 0.8, 0},
		})

		results, err := m.Search([]float32{1, 0, 0}, nil, 10)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "exact", results[0].Meta.ID)
		assert.Equal(t, "near", results[1].Meta.ID)
		assert.Equal(t, "far", results[2].Meta.ID)

		assert.InDelta(t, 0.0, results[0].Distance, 0.01)
		assert.InDelta(t, 0.4, results[1].Distance, 0.01)
		assert.InDelta(t, 1.0, results[2].Distance, 0.01)
	})

	t.Run("caps results at k", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "a.txt", map[string][]float32{
			"one":   {1, 0, 0},
			"two":   {0.6, 0.8, 0},
			"three": {0, 1, 0},
		})

		results, err := m.Search([]float32{1, 0, 0}, nil, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "one", results[0].Meta.ID)
		assert.Equal(t, "two", results[1].Meta.ID)
	})

	t.Run("never touches the user-query collection", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, UserQuerySource, map[string][]float32{
			"query-echo": {1, 0, 0},
		})
		addDocs(t, m, "a.txt", map[string][]float32{
			"doc": {0.6, 0.8, 0},
		})

		results, err := m.Search([]float32{1, 0, 0}, nil, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc", results[0].Meta.ID)

		results, err = m.Search([]float32{1, 0, 0}, []string{UserQuerySource}, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("honors an explicit source filter", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "a.txt", map[string][]float32{"in-a": {1, 0, 0}})
		addDocs(t, m, "b.txt", map[string][]float32{"in-b": {1, 0, 0}})

		results, err := m.Search([]float32{1, 0, 0}, []string{"b.txt"}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "in-b", results[0].Meta.ID)
	})

	t.Run("returns nothing for empty store", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		results, err := m.Search([]float32{1, 0, 0}, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestMemoryRelevantSources(t *testing.T) {
	t.Parallel()

	t.Run("aggregates matches below the threshold", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "a.txt", map[string][]float32{
			"a1": {1, 0, 0},
			"a2": {0.6, 0.8, 0},
		})
		addDocs(t, m, "b.txt", map[string][]float32{
			"b1": {0, 1, 0},
		})

		relevant, err := m.RelevantSources([]float32{1, 0, 0}, 10, 0.9, nil)
		require.NoError(t, err)
		require.Len(t, relevant, 1)

		r := relevant[0]
		assert.Equal(t, "a.txt", r.Collection)
		assert.Equal(t, 2, r.Count)
		assert.InDelta(t, 0.0, r.MinDistance, 0.01)
		assert.InDelta(t, 0.2, r.AvgDistance, 0.01)
	})

	t.Run("ranks by min distance and honors the limit", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "near.txt", map[string][]float32{"n": {1, 0, 0}})
		addDocs(t, m, "mid.txt", map[string][]float32{"m": {0.6, 0.8, 0}})
		addDocs(t, m, "far.txt", map[string][]float32{"f": {0, 1, 0}})

		relevant, err := m.RelevantSources([]float32{1, 0, 0}, 2, 2.0, nil)
		require.NoError(t, err)
		require.Len(t, relevant, 2)
		assert.Equal(t, "near.txt", relevant[0].Collection)
		assert.Equal(t, "mid.txt", relevant[1].Collection)
	})
}

func TestMemoryDeleteEmbeddings(t *testing.T) {
	t.Parallel()

	t.Run("wipes vectors but keeps registrations", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "a.txt", map[string][]float32{"a1": {1, 0, 0}, "a2": {0, 1, 0}})
		addDocs(t, m, "b.txt", map[string][]float32{"b1": {0, 0, 1}})
		require.NoError(t, m.SetState("a.txt", StateCompleted))

		removed, err := m.DeleteEmbeddings("")
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		sources, err := m.ListSources()
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.txt"}, sources)

		stats, err := m.SourceStats("a.txt")
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, stats.Status)
		assert.Zero(t, stats.VectorCount)
	})

	t.Run("scopes to one collection", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "a.txt", map[string][]float32{"a1": {1, 0, 0}})
		addDocs(t, m, "b.txt", map[string][]float32{"b1": {0, 1, 0}})

		removed, err := m.DeleteEmbeddings("a.txt")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		stats, err := m.SourceStats("b.txt")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.VectorCount)
	})
}

func TestMemorySourceStats(t *testing.T) {
	t.Parallel()

	t.Run("reports not_found for unknown collections", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		stats, err := m.SourceStats("ghost.txt")
		require.NoError(t, err)
		assert.Equal(t, StateNotFound, stats.Status)
		assert.Equal(t, "ghost.txt", stats.SourcePath)
		assert.Zero(t, stats.VectorCount)
		assert.Zero(t, stats.Dimension)
	})

	t.Run("reports counts and dimension", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "a.txt", map[string][]float32{"a1": {1, 0, 0}, "a2": {0, 1, 0}})

		stats, err := m.SourceStats("a.txt")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.VectorCount)
		assert.Equal(t, 3, stats.Dimension)
		assert.Equal(t, StateProcessing, stats.Status)
	})

	t.Run("stats by name lists grouped collections", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		require.NoError(t, m.Create("dir/a.txt", testSourceType, "dir", StateCompleted))
		require.NoError(t, m.Create("dir/b.txt", testSourceType, "dir", StateProcessing))
		require.NoError(t, m.Create("c.txt", testSourceType, "", StateCompleted))

		stats, err := m.SourceStatsByName("dir")
		require.NoError(t, err)
		require.Len(t, stats, 2)
		assert.Equal(t, "dir/a.txt", stats[0].SourcePath)
		assert.Equal(t, "dir/b.txt", stats[1].SourcePath)
	})
}

func TestMemoryGetByID(t *testing.T) {
	t.Parallel()

	t.Run("honors the optional source filter", func(t *testing.T) {
		t.Parallel()

		m := NewMemory(3, logging.Nop())
		addDocs(t, m, "a.txt", map[string][]float32{"a1": {1, 0, 0}})

		item, err := m.GetByID("a1", "a.txt")
		require.NoError(t, err)
		require.NotNil(t, item)

		item, err = m.GetByID("a1", "b.txt")
		require.NoError(t, err)
		assert.Nil(t, item)

		item, err = m.GetByID("missing", "")
		require.NoError(t, err)
		assert.Nil(t, item)
	})
}

// Test helpers

// addDocs registers source if needed and stores one vector per id.
func addDocs(t *testing.T, m DataSourceMap, source string, docs map[string][]float32) {
	t.Helper()

	require.NoError(t, m.Create(source, testSourceType, "", StateProcessing))
	for id, vec := range docs {
		_, err := m.AddBatch(source, []Item{{
			Text:   fmt.Sprintf("text for %s", id),
			Meta:   Meta{ID: id, Source: source, SourceType: testSourceType},
			Vector: vec,
		}})
		require.NoError(t, err)
	}
}

func newMemoryWithDocs(t *testing.T, source string, vec []float32) *MemoryMap {
	t.Helper()

	m := NewMemory(len(vec), logging.Nop())
	addDocs(t, m, source, map[string][]float32{"doc": vec})
	return m
}
