package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mvp-joe/mcp-brag/internal/apperr"
	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/search"
)

// searchHit is the wire form of one search result.
type searchHit struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Distance float64 `json:"distance"`
}

func searchResponse(query string, results []search.Result, elapsed time.Duration) map[string]any {
	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{Text: r.Text, Source: r.Source, Distance: r.Distance})
	}
	return map[string]any{
		"status":              "success",
		"query":               query,
		"results_count":       len(hits),
		"search_time_seconds": fmt.Sprintf("%.3f", elapsed.Seconds()),
		"results":             hits,
	}
}

func (s *Server) handleSearchFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query  string `json:"query"`
		Offset int    `json:"offset"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, apperr.BadRequest("Query cannot be empty"))
		return
	}

	limit := s.cfg.Int(config.KeySearchResultLimit)
	start := time.Now()
	results, err := s.search.Search(r.Context(), req.Query, s.active.Filter(), limit, req.Offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	elapsed := time.Since(start)

	s.metrics.Searches.WithLabelValues("search").Inc()
	s.metrics.SearchSeconds.Observe(elapsed.Seconds())
	s.writeJSON(w, http.StatusOK, searchResponse(req.Query, results, elapsed))
}

func (s *Server) handleDeepSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query   string   `json:"query"`
		Sources []string `json:"sources"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, apperr.BadRequest("Query cannot be empty"))
		return
	}
	if max := s.cfg.Int(config.KeyMaxSourcesInDeepSearch); len(req.Sources) > max {
		s.writeError(w, apperr.BadRequest("Too many sources: %d (max = %d)", len(req.Sources), max))
		return
	}

	limit := s.cfg.Int(config.KeyDeepSearchResultLimit)
	start := time.Now()
	results, err := s.search.Search(r.Context(), req.Query, req.Sources, limit, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	elapsed := time.Since(start)

	s.metrics.Searches.WithLabelValues("deep_search").Inc()
	s.metrics.SearchSeconds.Observe(elapsed.Seconds())
	s.writeJSON(w, http.StatusOK, searchResponse(req.Query, results, elapsed))
}

func (s *Server) handleMostRelevantFiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, apperr.BadRequest("Query cannot be empty"))
		return
	}

	limit := s.cfg.Int(config.KeySearchResultLimit)
	start := time.Now()
	ranked, err := s.search.MostRelevantSources(r.Context(), req.Query, s.active.Filter(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	elapsed := time.Since(start)

	s.metrics.Searches.WithLabelValues("most_relevant_files").Inc()
	s.metrics.SearchSeconds.Observe(elapsed.Seconds())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":                "success",
		"most_relevant_sources": ranked,
		"search_time_seconds":   fmt.Sprintf("%.3f", elapsed.Seconds()),
	})
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	if s.keyword == nil {
		s.writeError(w, apperr.BadRequest("keyword search is disabled"))
		return
	}

	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, apperr.BadRequest("Query cannot be empty"))
		return
	}

	hits, err := s.keyword.Search(req.Query, req.Limit)
	if err != nil {
		// Parse failures from query syntax are the caller's to fix.
		s.writeError(w, apperr.BadRequest("invalid keyword query: %v", err))
		return
	}

	s.metrics.Searches.WithLabelValues("keyword").Inc()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"query":         req.Query,
		"results_count": len(hits),
		"results":       hits,
	})
}
