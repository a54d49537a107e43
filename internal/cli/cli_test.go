package cli

// Test Plan:
// 1. The HTTP client surfaces server error messages and turns transport
//    failures into a hint that the server is not running.
// 2. Directory expansion discovery filters the listing by prefix and
//    skips sources that existed before the ingest.
// 3. The progress averaging and the small formatting helpers behave.

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.Handler) (*client, func()) {
	srv := httptest.NewServer(handler)
	return &client{base: srv.URL, http: &http.Client{Timeout: 5 * time.Second}}, srv.Close
}

func TestClientErrorHandling(t *testing.T) {
	t.Parallel()

	t.Run("surfaces the server error message", func(t *testing.T) {
		c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status":"error","error":"Query cannot be empty"}`)
		}))
		defer done()

		err := c.post("/manual/search_file", map[string]string{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Query cannot be empty")
	})

	t.Run("falls back to the http status", func(t *testing.T) {
		c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer done()

		err := c.get("/manual/health", nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("hints at a stopped server on transport errors", func(t *testing.T) {
		c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		done() // close immediately so the connection is refused

		err := c.get("/manual/health", nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mcp-brag serve")
	})

	t.Run("decodes successful responses", func(t *testing.T) {
		c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status":"success","message":"done"}`)
		}))
		defer done()

		var resp messageResponse
		require.NoError(t, c.post("/manual/delete_vectors", nil, &resp))
		assert.Equal(t, "done", resp.Message)
	})
}

func TestDiscoverExpanded(t *testing.T) {
	t.Parallel()

	listing := `{"status":"success","total_files":3,"total_vectors":9,"files":[
		{"source_name":"","source_path":"/data/docs/new.md","status":"processing","vector_count":0},
		{"source_name":"","source_path":"/data/docs/old.md","status":"completed","vector_count":4},
		{"source_name":"","source_path":"/data/other.txt","status":"completed","vector_count":5}]}`
	c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing)
	}))
	defer done()

	found := discoverExpanded(c, []string{"/data/docs"}, []string{"/data/docs/old.md"})
	assert.Equal(t, []string{"/data/docs/new.md"}, found)
}

func TestOverallPercent(t *testing.T) {
	t.Parallel()

	assert.Zero(t, overallPercent(&ingestionStatusResponse{}))

	pct := func(v float64) *float64 { return &v }
	status := ingestionStatusResponse{
		Progress: &ingestionProgress{
			PhaseProgresses: []phaseProgress{
				{Phase: "embedding", Percentage: pct(100)},
				{Phase: "storing", Percentage: pct(50)},
				{Phase: "initialization", Percentage: nil}, // total not known yet
			},
		},
	}
	assert.InDelta(t, 50.0, overallPercent(&status), 0.001)
}

func TestIsURL(t *testing.T) {
	t.Parallel()

	assert.True(t, isURL("https://www.youtube.com/watch?v=abc"))
	assert.True(t, isURL("http://localhost:9000/x"))
	assert.False(t, isURL("/home/me/notes.md"))
	assert.False(t, isURL("notes.md"))
}

func TestStatusBadge(t *testing.T) {
	color.NoColor = true

	assert.Equal(t, "[completed      ]", statusBadge("completed"))
	assert.Equal(t, "[failed         ]", statusBadge("failed"))
	assert.Equal(t, "[weird          ]", statusBadge("weird"))
}
