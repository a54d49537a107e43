// Package api serves the manual HTTP surface: ingestion, search, source
// management, configuration and health. Every response is JSON; errors
// render as {"status":"error","error":...} with the mapped status code.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/apperr"
	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/ingest"
	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/search"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Config   *config.Config
	Index    store.DataSourceMap
	Ingest   *ingest.Service
	Search   *search.Service
	Active   *search.ActiveSources
	Keyword  *search.Keyword // nil when keyword search is disabled
	Progress *progress.Manager
	Metrics  *metrics.Metrics
}

// Server owns the HTTP handlers.
type Server struct {
	cfg      *config.Config
	index    store.DataSourceMap
	ingest   *ingest.Service
	search   *search.Service
	active   *search.ActiveSources
	keyword  *search.Keyword
	progress *progress.Manager
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func New(deps Deps, log zerolog.Logger) *Server {
	return &Server{
		cfg:      deps.Config,
		index:    deps.Index,
		ingest:   deps.Ingest,
		search:   deps.Search,
		active:   deps.Active,
		keyword:  deps.Keyword,
		progress: deps.Progress,
		metrics:  deps.Metrics,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /manual/health", s.handleHealth)
	mux.HandleFunc("GET /manual/system_status", s.handleSystemStatus)
	mux.HandleFunc("GET /manual/config", s.handleGetConfig)
	mux.HandleFunc("POST /manual/config", s.handleSetConfig)

	mux.HandleFunc("POST /manual/process_file_async", s.handleProcessFile)
	mux.HandleFunc("POST /manual/reprocess_file_async", s.handleReprocessFile)
	mux.HandleFunc("POST /manual/process_url_async", s.handleProcessURL)
	mux.HandleFunc("POST /manual/ingestion_status", s.handleIngestionStatus)

	mux.HandleFunc("GET /manual/data_sources", s.handleDataSources)
	mux.HandleFunc("POST /manual/delete_data_source", s.handleDeleteSource)
	mux.HandleFunc("POST /manual/delete_data_sources_by_name", s.handleDeleteByName)
	mux.HandleFunc("POST /manual/delete_vectors", s.handleClearVectors)

	mux.HandleFunc("GET /manual/active_data_sources", s.handleActiveSources)
	mux.HandleFunc("POST /manual/mark_data_sources_as_active", s.handleMarkActive)
	mux.HandleFunc("POST /manual/mark_data_sources_as_inactive", s.handleMarkInactive)

	mux.HandleFunc("POST /manual/search_file", s.handleSearchFile)
	mux.HandleFunc("POST /manual/deep_search", s.handleDeepSearch)
	mux.HandleFunc("POST /manual/most_relevant_files", s.handleMostRelevantFiles)
	mux.HandleFunc("POST /manual/keyword_search", s.handleKeywordSearch)

	mux.Handle("GET /metrics", s.metrics.Handler())

	return mux
}

// Serve blocks until ctx is done, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("http server shutdown error")
		}
	}()

	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperr.Code(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, code, map[string]any{"status": "error", "error": err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.BadRequest("invalid JSON body: %v", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	// One index round trip stands in for a full dependency probe.
	if _, err := s.index.ListSources(); err != nil {
		s.writeError(w, apperr.Dependency("vector index unavailable", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"system_health": "operational",
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": s.cfg.All()})
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigName  string `json:"config_name"`
		ConfigValue any    `json:"config_value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ConfigName == "" {
		s.writeError(w, apperr.BadRequest("config_name is required"))
		return
	}

	entry, err := s.cfg.Set(req.ConfigName, req.ConfigValue)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": entry})
}
