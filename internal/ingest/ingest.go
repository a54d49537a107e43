// Package ingest registers data sources and feeds their content into the
// pipeline queues.
//
// File ingestion runs through three steps: register the source (progress
// state plus vector store collection), split the file into chunks, and queue
// the chunks for embedding. Audio files skip the chunking step and queue a
// transcription task instead; the transcript is chunked by the pipeline once
// it exists. URLs only queue a download, the rest happens downstream.
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/apperr"
	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/pipeline"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/readers"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

// audioExtensions are handled by transcription rather than a reader.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
}

// KeywordIndex is the slice of the keyword searcher that source deletion
// touches.
type KeywordIndex interface {
	DeleteSource(source string) error
}

// Service owns the ingestion entry points used by the HTTP API, the MCP
// tools and the file watcher.
type Service struct {
	index    store.DataSourceMap
	pipe     *pipeline.Pipeline
	progress *progress.Manager
	metrics  *metrics.Metrics
	keyword  KeywordIndex // may be nil when keyword search is disabled
	cfg      *config.Config
	log      zerolog.Logger
}

func New(index store.DataSourceMap, pipe *pipeline.Pipeline, prog *progress.Manager, m *metrics.Metrics, keyword KeywordIndex, cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{
		index:    index,
		pipe:     pipe,
		progress: prog,
		metrics:  m,
		keyword:  keyword,
		cfg:      cfg,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Expand resolves path to the list of files it covers. A regular file
// expands to itself; a directory is walked recursively with the configured
// ignore globs applied; anything else is a bad request.
func (s *Service) Expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperr.BadRequest("invalid file path: %s", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	ignores, err := compileGlobs(s.cfg.Strings(config.KeyIngestionIgnoreGlobs))
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			// A directory matching pattern "x/**" is pruned whole. The walk
			// root itself is never pruned: expanding an ignored directory
			// explicitly is an intentional request.
			if rel != "." && matchesAny(rel+"/**", ignores) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(rel, ignores) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	return files, nil
}

// ProcessFiles registers every path and queues its content for ingestion.
// Failures are per file: a path that cannot be read marks its own source
// failed and the rest continue.
func (s *Service) ProcessFiles(paths []string, sourceName string) {
	for _, path := range paths {
		s.processFile(path, sourceName)
	}
}

// ProcessURL queues a YouTube URL for download and registers its source.
// The URL itself is validated by the download worker.
func (s *Service) ProcessURL(url, sourceName string) error {
	s.deleteExisting(url)

	s.register(url)
	s.progress.AddPhase(url, progress.PhaseInitialization, true)
	s.progress.SetPhaseTotal(url, progress.PhaseInitialization, 1)

	if err := s.pipe.Downloads().PutMany([]string{url}); err != nil {
		s.progress.Remove(url)
		return fmt.Errorf("failed to queue download for %s: %w", url, err)
	}
	s.progress.IncrementPhase(url, progress.PhaseInitialization, 1)

	if err := s.index.Create(url, string(readers.SourceYouTubeTranscription), sourceName, store.StateProcessing); err != nil {
		// The download is already queued; the storage worker registers
		// unknown sources, so the ingestion still lands.
		return fmt.Errorf("failed to register data source %s: %w", url, err)
	}
	return nil
}

func (s *Service) processFile(path, sourceName string) {
	s.deleteExisting(path)

	s.register(path)
	s.progress.AddPhase(path, progress.PhaseInitialization, true)
	s.progress.SetPhaseTotal(path, progress.PhaseInitialization, 1)

	err := s.index.Create(path, string(s.sourceTypeOf(path)), sourceName, store.StateProcessing)
	if err == nil {
		s.progress.IncrementPhase(path, progress.PhaseInitialization, 1)
		if isAudioPath(path) {
			err = s.enqueueAudio(path)
		} else {
			err = s.enqueueText(path)
		}
	}
	if err != nil {
		s.log.Error().Err(err).Str("source", path).Msg("failed to ingest file")
		s.progress.MarkFailed(path)
	}
}

// enqueueText chunks a readable file and queues the chunks for embedding.
func (s *Service) enqueueText(path string) error {
	s.progress.AddPhase(path, progress.PhaseEmbedding, true)
	s.progress.AddPhase(path, progress.PhaseStoring, true)

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist", path)
	}

	reader := readers.ForPath(path, s.chunkMax(), s.log)
	chunks, err := reader.Chunks()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(chunks) == 0 {
		// Nothing to embed, the source completes immediately.
		s.progress.MarkCompleted(path)
		return nil
	}

	items := make([]store.Item, 0, len(chunks))
	for _, chunk := range chunks {
		items = append(items, store.Item{
			Text: chunk.Text,
			Meta: store.Meta{
				ID:         uuid.New().String(),
				Source:     path,
				SourceType: string(reader.SourceType()),
				StartIndex: chunk.StartIndex,
				EndIndex:   chunk.EndIndex,
				Text:       chunk.Text,
			},
			SourceID: path,
		})
	}

	s.progress.SetPhaseTotal(path, progress.PhaseEmbedding, len(items))
	s.progress.SetPhaseTotal(path, progress.PhaseStoring, len(items))
	if err := s.pipe.EmbedderRead().PutMany(items); err != nil {
		return fmt.Errorf("failed to queue chunks of %s: %w", path, err)
	}
	s.log.Debug().Int("chunks", len(items)).Str("source", path).Msg("queued file chunks for embedding")
	return nil
}

// enqueueAudio queues an audio file for transcription. The audio folder is
// not deleted afterwards; unlike downloads, the file belongs to the user.
func (s *Service) enqueueAudio(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist", path)
	}

	s.progress.AddPhase(path, progress.PhaseTranscription, true)
	s.progress.AddPhase(path, progress.PhaseEmbedding, true)
	s.progress.AddPhase(path, progress.PhaseStoring, true)

	task := pipeline.TranscriptionTask{
		ID:              uuid.New().String(),
		AudioPath:       path,
		AudioFolderPath: filepath.Dir(path),
		Source:          path,
		SourceType:      readers.SourceLocalAudioFile,
		TaskID:          uuid.New().String(),
		CreatedAt:       time.Now(),
	}
	if err := s.pipe.Transcriptions().PutMany([]pipeline.TranscriptionTask{task}); err != nil {
		return fmt.Errorf("failed to queue %s for transcription: %w", path, err)
	}
	return nil
}

// register creates the progress state whose terminal callbacks flip the
// stored collection state.
func (s *Service) register(source string) {
	s.progress.Create(source,
		func() {
			if err := s.index.SetState(source, store.StateCompleted); err != nil {
				s.log.Warn().Err(err).Str("source", source).Msg("failed to mark data source completed")
			}
			s.metrics.SourcesCompleted.Inc()
		},
		func() {
			if err := s.index.SetState(source, store.StateFailed); err != nil {
				s.log.Warn().Err(err).Str("source", source).Msg("failed to mark data source failed")
			}
			s.metrics.SourcesFailed.Inc()
		})
}

func (s *Service) deleteExisting(source string) {
	exists, err := s.index.Exists(source)
	if err != nil || !exists {
		return
	}
	s.log.Debug().Str("source", source).Msg("data source already exists, deleting it before re-ingestion")
	if _, err := s.index.Delete(source); err != nil {
		s.log.Warn().Err(err).Str("source", source).Msg("failed to delete data source")
	}
	if s.keyword != nil {
		if err := s.keyword.DeleteSource(source); err != nil {
			s.log.Warn().Err(err).Str("source", source).Msg("failed to purge keyword index")
		}
	}
}

// sourceTypeOf labels the source for registration. Audio files are labeled
// directly; everything else takes its reader's type.
func (s *Service) sourceTypeOf(path string) readers.SourceType {
	if isAudioPath(path) {
		return readers.SourceLocalAudioFile
	}
	return readers.ForPath(path, s.chunkMax(), s.log).SourceType()
}

func (s *Service) chunkMax() int {
	return s.cfg.Int(config.KeyChunkCharacterLimit)
}

func isAudioPath(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("bad ignore glob %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchesAny(path string, globs []glob.Glob) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}
