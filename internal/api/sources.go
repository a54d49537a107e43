package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/mvp-joe/mcp-brag/internal/apperr"
	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

func (s *Server) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilePath   string `json:"file_path"`
		SourceName string `json:"source_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.FilePath == "" {
		s.writeError(w, apperr.BadRequest("file_path is required"))
		return
	}

	files, err := s.ingest.Expand(req.FilePath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if max := s.cfg.Int(config.KeyIngestionMaxFilePaths); len(files) > max {
		s.writeError(w, apperr.BadRequest(
			"Too many files: %d in path %s (max = %d)", len(files), req.FilePath, max))
		return
	}

	go s.ingest.ProcessFiles(files, req.SourceName)
	s.writeJSON(w, http.StatusCreated, map[string]any{"status": "success"})
}

func (s *Server) handleReprocessFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilePath string `json:"file_path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if info, err := os.Stat(req.FilePath); err != nil || info.IsDir() {
		s.writeError(w, apperr.BadRequest("File %s does not exist", req.FilePath))
		return
	}

	go s.ingest.ProcessFiles([]string{req.FilePath}, "")
	s.writeJSON(w, http.StatusCreated, map[string]any{"status": "success"})
}

func (s *Server) handleProcessURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL        string `json:"url"`
		SourceName string `json:"source_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.URL == "" {
		s.writeError(w, apperr.BadRequest("url is required"))
		return
	}

	if err := s.ingest.ProcessURL(req.URL, req.SourceName); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("URL %s added to download queue", req.URL),
	})
}

func (s *Server) handleIngestionStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Source == "" {
		s.writeError(w, apperr.BadRequest("source is required"))
		return
	}

	stats, err := s.index.SourceStats(req.Source)
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch stats.Status {
	case store.StateNotFound:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":           "success",
			"ingestion_status": stats.Status,
			"message":          fmt.Sprintf("Data source %s not found", req.Source),
		})
	case store.StateFailed:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":           "success",
			"ingestion_status": stats.Status,
			"message":          fmt.Sprintf("Data source %s failed to ingest", req.Source),
		})
	case store.StateCompleted:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":           "success",
			"ingestion_status": stats.Status,
		})
	case store.StateProcessing:
		st, ok := s.progress.Get(req.Source)
		if !ok {
			// Processing with no live state means the ingestion was
			// interrupted; there is no recovery, so flip it to failed.
			if err := s.index.SetState(req.Source, store.StateFailed); err != nil {
				s.log.Warn().Err(err).Str("source", req.Source).Msg("failed to mark interrupted source")
			}
			s.writeJSON(w, http.StatusOK, map[string]any{
				"status":           "success",
				"ingestion_status": store.StateFailed,
				"message":          fmt.Sprintf("Data source %s failed to ingest", req.Source),
			})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":           "success",
			"ingestion_status": stats.Status,
			"progress":         st.Snapshot(),
		})
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":            "success",
			"ingestion_status":  stats.Status,
			"progress":          0,
			"total_chunk_count": 0,
		})
	}
}

func (s *Server) handleDataSources(w http.ResponseWriter, r *http.Request) {
	sourceName := r.URL.Query().Get("source_name")
	source := r.URL.Query().Get("source")
	if sourceName != "" && source != "" {
		s.writeError(w, apperr.BadRequest("Source name and source cannot be provided together"))
		return
	}

	switch {
	case sourceName != "":
		stats, err := s.index.SourceStatsByName(sourceName)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, listingResponse(stats))
	case source != "":
		stats, err := s.index.SourceStats(source)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":        "success",
			"total_files":   1,
			"total_vectors": stats.VectorCount,
			"file":          []store.Stats{stats},
		})
	default:
		sources, err := s.index.ListSources()
		if err != nil {
			s.writeError(w, err)
			return
		}
		all, err := s.index.SourcesStats()
		if err != nil {
			s.writeError(w, err)
			return
		}

		files := make([]store.Stats, 0, len(sources))
		for _, src := range sources {
			if src == store.UserQuerySource {
				continue
			}
			stats, ok := all[src]
			if !ok {
				continue
			}
			files = append(files, stats)
		}
		s.writeJSON(w, http.StatusOK, listingResponse(files))
	}
}

func listingResponse(files []store.Stats) map[string]any {
	if files == nil {
		files = []store.Stats{}
	}
	totalVectors := 0
	for _, f := range files {
		totalVectors += f.VectorCount
	}
	return map[string]any{
		"status":        "success",
		"total_files":   len(files),
		"total_vectors": totalVectors,
		"files":         files,
	}
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Source == "" {
		s.writeError(w, apperr.BadRequest("source is required"))
		return
	}

	found, err := s.index.Delete(req.Source)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.purgeKeyword(req.Source)

	msg := fmt.Sprintf("Data source %s deleted successfully", req.Source)
	if !found {
		msg = fmt.Sprintf("Data source %s not found", req.Source)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":                "success",
		"message":               msg,
		"data_source_was_found": found,
	})
}

func (s *Server) handleDeleteByName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceName string `json:"source_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.SourceName == "" {
		s.writeError(w, apperr.BadRequest("source_name is required"))
		return
	}

	// Collect the member paths first so the keyword index can follow.
	members, err := s.index.SourceStatsByName(req.SourceName)
	if err != nil {
		s.writeError(w, err)
		return
	}

	found, err := s.index.DeleteByName(req.SourceName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, m := range members {
		s.purgeKeyword(m.SourcePath)
	}

	msg := fmt.Sprintf("Data sources with name %s deleted successfully", req.SourceName)
	if !found {
		msg = fmt.Sprintf("No data source with name %s were found", req.SourceName)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":                  "success",
		"message":                 msg,
		"data_sources_were_found": found,
	})
}

func (s *Server) handleClearVectors(w http.ResponseWriter, _ *http.Request) {
	sources, err := s.index.ListSources()
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, src := range sources {
		if src == store.UserQuerySource {
			continue
		}
		if err := s.index.SetState(src, store.StateNeedProcessing); err != nil {
			s.log.Warn().Err(err).Str("source", src).Msg("failed to flag source for reprocessing")
		}
	}

	if _, err := s.index.DeleteEmbeddings(""); err != nil {
		s.writeError(w, err)
		return
	}
	if s.keyword != nil {
		if err := s.keyword.Reset(); err != nil {
			s.log.Warn().Err(err).Msg("failed to reset keyword index")
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Cleared all vectors",
	})
}

func (s *Server) handleActiveSources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"active_data_sources": s.active.List(),
	})
}

func (s *Server) handleMarkActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourcePaths []string `json:"source_paths"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.SourcePaths == nil {
		s.writeError(w, apperr.BadRequest("source_paths is required"))
		return
	}

	active, err := s.active.Activate(req.SourcePaths)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"active_data_sources": active,
	})
}

func (s *Server) handleMarkInactive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourcePaths []string `json:"source_paths"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.SourcePaths == nil {
		s.writeError(w, apperr.BadRequest("source_paths is required"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"active_data_sources": s.active.Deactivate(req.SourcePaths),
	})
}

func (s *Server) purgeKeyword(source string) {
	if s.keyword == nil {
		return
	}
	if err := s.keyword.DeleteSource(source); err != nil {
		s.log.Warn().Err(err).Str("source", source).Msg("failed to purge keyword index")
	}
}
