package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	t.Run("counters accumulate", func(t *testing.T) {
		t.Parallel()

		m := New()
		m.ChunksStored.Add(3)
		m.Searches.WithLabelValues("search").Inc()
		m.Searches.WithLabelValues("deep_search").Inc()
		m.Searches.WithLabelValues("deep_search").Inc()

		assert.Equal(t, 3.0, testutil.ToFloat64(m.ChunksStored))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("search")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.Searches.WithLabelValues("deep_search")))
	})

	t.Run("handler serves the exposition format", func(t *testing.T) {
		t.Parallel()

		m := New()
		m.EmbedBatches.Inc()

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "brag_embed_batches_total 1")
	})

	t.Run("gauges track live callbacks", func(t *testing.T) {
		t.Parallel()

		m := New()
		depth := 7
		running := true
		m.RegisterQueueDepth("embedder_read", func() int { return depth })
		m.RegisterWorker("embedder", func() bool { return running })

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body := rec.Body.String()
		assert.Contains(t, body, `brag_queue_depth{queue="embedder_read"} 7`)
		assert.Contains(t, body, `brag_worker_running{worker="embedder"} 1`)

		depth = 0
		running = false
		rec = httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body = rec.Body.String()
		assert.Contains(t, body, `brag_queue_depth{queue="embedder_read"} 0`)
		assert.Contains(t, body, `brag_worker_running{worker="embedder"} 0`)
	})
}
