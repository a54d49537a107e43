package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/mcp-brag/internal/logging"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

func newKeywordFixture(t *testing.T) *Keyword {
	t.Helper()

	k, err := NewKeyword(logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })

	require.NoError(t, k.IndexBatch([]store.Item{
		{Text: "the quick brown fox", Meta: store.Meta{ID: "1", Source: "a.txt", SourceType: "LOCAL_TEXT_FILE"}},
		{Text: "lazy dogs sleep all day", Meta: store.Meta{ID: "2", Source: "b.txt", SourceType: "LOCAL_TEXT_FILE"}},
		{Text: "quick silver linings", Meta: store.Meta{ID: "3", Source: "b.txt", SourceType: "LOCAL_TEXT_FILE"}},
	}))
	return k
}

func TestKeyword(t *testing.T) {
	t.Parallel()

	t.Run("finds chunks by term", func(t *testing.T) {
		t.Parallel()

		k := newKeywordFixture(t)
		hits, err := k.Search("quick", 10)
		require.NoError(t, err)
		require.Len(t, hits, 2)

		sources := []string{hits[0].Source, hits[1].Source}
		assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, sources)
		for _, h := range hits {
			assert.NotEmpty(t, h.Text)
			assert.Greater(t, h.Score, 0.0)
		}
	})

	t.Run("caps results at the limit", func(t *testing.T) {
		t.Parallel()

		k := newKeywordFixture(t)
		hits, err := k.Search("quick", 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("deleting a source removes only its chunks", func(t *testing.T) {
		t.Parallel()

		k := newKeywordFixture(t)
		require.NoError(t, k.DeleteSource("b.txt"))

		count, err := k.DocCount()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), count)

		hits, err := k.Search("quick", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "a.txt", hits[0].Source)
	})

	t.Run("deleting an unknown source is a no-op", func(t *testing.T) {
		t.Parallel()

		k := newKeywordFixture(t)
		require.NoError(t, k.DeleteSource("ghost.txt"))

		count, err := k.DocCount()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), count)
	})

	t.Run("reset drops every chunk", func(t *testing.T) {
		t.Parallel()

		k := newKeywordFixture(t)
		require.NoError(t, k.Reset())

		count, err := k.DocCount()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), count)

		hits, err := k.Search("quick", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}
