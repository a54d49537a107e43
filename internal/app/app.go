// Package app assembles the service from configuration: the vector store
// backend, embedding and transcription providers, the ingestion pipeline,
// search, the HTTP surface and the optional file watcher. CLI commands
// build an App and serve the pieces they need.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/api"
	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/download"
	"github.com/mvp-joe/mcp-brag/internal/embed"
	"github.com/mvp-joe/mcp-brag/internal/ingest"
	"github.com/mvp-joe/mcp-brag/internal/mcp"
	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/pipeline"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/search"
	"github.com/mvp-joe/mcp-brag/internal/store"
	"github.com/mvp-joe/mcp-brag/internal/transcribe"
	"github.com/mvp-joe/mcp-brag/internal/watch"
)

// App holds the wired component graph. New builds it, Start brings the
// providers and workers up, Close tears everything down. Fields are
// exported so commands and tests can reach individual components.
type App struct {
	Config      *config.Config
	Index       store.DataSourceMap
	Embedder    embed.Provider
	Transcriber transcribe.Provider
	Downloader  *download.Downloader
	Progress    *progress.Manager
	Metrics     *metrics.Metrics
	Keyword     *search.Keyword // nil when keyword search is disabled
	Pipeline    *pipeline.Pipeline
	Ingest      *ingest.Service
	Search      *search.Service
	Active      *search.ActiveSources
	API         *api.Server
	Watcher     *watch.Watcher // nil unless watch mode is enabled

	log zerolog.Logger
}

// New builds the dependency graph from cfg. Nothing runs yet: providers
// are not initialized and no worker starts until Start is called.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		log:    log.With().Str("component", "app").Logger(),
	}

	index, err := openIndex(cfg, log)
	if err != nil {
		return nil, err
	}
	a.Index = index

	embedder, err := embed.NewProvider(embed.Config{
		Provider:   cfg.Str(config.KeyEmbedProvider),
		Endpoint:   cfg.Str(config.KeyEmbedEndpoint),
		APIKey:     cfg.Str(config.KeyEmbedAPIKey),
		Model:      cfg.Str(config.KeyEmbedModel),
		Dimensions: cfg.Int(config.KeyEmbeddingSize),
		CacheSize:  cfg.Int(config.KeyEmbedCacheSize),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	a.Embedder = embedder

	transcriber, err := transcribe.NewProvider(transcribe.Config{
		Provider: cfg.Str(config.KeyTranscribeProvider),
		Endpoint: cfg.Str(config.KeyTranscribeEndpoint),
		APIKey:   cfg.Str(config.KeyTranscribeAPIKey),
		Model:    cfg.Str(config.KeyTranscribeModel),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create transcription provider: %w", err)
	}
	a.Transcriber = transcriber

	a.Downloader = download.New(cfg.Str(config.KeyYtDlpPath), cfg.Str(config.KeyTempAudioDir), log)
	a.Progress = progress.NewManager(log)
	a.Metrics = metrics.New()

	if cfg.Bool(config.KeyKeywordSearchEnabled) {
		kw, err := search.NewKeyword(log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create keyword index: %w", err)
		}
		a.Keyword = kw
	}

	deps := pipeline.Deps{
		Index:       index,
		Embedder:    embedder,
		Transcriber: transcriber,
		Downloader:  a.Downloader,
		Progress:    a.Progress,
		Metrics:     a.Metrics,
	}
	// Assign only a live keyword index so the nil check inside the
	// storage worker keeps working.
	if a.Keyword != nil {
		deps.Keyword = a.Keyword
	}
	a.Pipeline = pipeline.New(pipelineOptions(cfg), deps, log)

	var kwDelete ingest.KeywordIndex
	if a.Keyword != nil {
		kwDelete = a.Keyword
	}
	a.Ingest = ingest.New(index, a.Pipeline, a.Progress, a.Metrics, kwDelete, cfg, log)
	a.Search = search.New(index, a.Pipeline, cfg, log)
	a.Active = search.NewActiveSources(index, log)

	a.API = api.New(api.Deps{
		Config:   cfg,
		Index:    index,
		Ingest:   a.Ingest,
		Search:   a.Search,
		Active:   a.Active,
		Keyword:  a.Keyword,
		Progress: a.Progress,
		Metrics:  a.Metrics,
	}, log)

	if cfg.Bool(config.KeyWatchEnabled) {
		w, err := watch.New(index, a.Ingest, cfg.Duration(config.KeyWatchDebounce), log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Watcher = w
	}

	return a, nil
}

// Start initializes the providers and launches the pipeline workers and
// the file watcher. Blocks until the embedding endpoint answers, so a
// misconfigured endpoint fails here rather than on the first ingestion.
func (a *App) Start(ctx context.Context) error {
	if err := a.Embedder.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if err := a.Transcriber.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize transcription provider: %w", err)
	}

	a.Pipeline.Start()
	if a.Watcher != nil {
		a.Watcher.Start(ctx)
	}

	a.log.Info().
		Str("backend", a.Config.Str(config.KeyVectorStoreBackend)).
		Bool("keyword_search", a.Keyword != nil).
		Bool("watch", a.Watcher != nil).
		Msg("service started")
	return nil
}

// ServeHTTP runs the manual HTTP API on the configured host and port,
// blocking until ctx is done.
func (a *App) ServeHTTP(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.Config.Str(config.KeyHTTPHost), a.Config.Int(config.KeyHTTPPort))
	return a.API.Serve(ctx, addr)
}

// MCP builds the stdio MCP server on top of the search service.
func (a *App) MCP(version string) *mcp.Server {
	return mcp.New(mcp.Deps{
		Config: a.Config,
		Search: a.Search,
		Active: a.Active,
	}, version, a.log)
}

// Close stops the watcher and the pipeline and releases providers and the
// store. Safe to call on a partially built App and after a failed Start.
func (a *App) Close() {
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	if a.Pipeline != nil {
		a.Pipeline.Stop()
	}
	if a.Keyword != nil {
		if err := a.Keyword.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close keyword index")
		}
	}
	if a.Transcriber != nil {
		if err := a.Transcriber.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close transcription provider")
		}
	}
	if a.Embedder != nil {
		if err := a.Embedder.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close embedding provider")
		}
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close vector store")
		}
	}
}

// openIndex picks the vector store backend. The sqlite backend owns its
// database directory; memory is for tests and throwaway runs.
func openIndex(cfg *config.Config, log zerolog.Logger) (store.DataSourceMap, error) {
	dim := cfg.Int(config.KeyEmbeddingSize)

	switch backend := cfg.Str(config.KeyVectorStoreBackend); backend {
	case "sqlite":
		path := cfg.Str(config.KeySQLiteDBLocation)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return store.OpenSQLite(path, dim, log)
	case "memory":
		return store.NewMemory(dim, log), nil
	default:
		return nil, fmt.Errorf("unsupported vector store backend: %s (supported: sqlite, memory)", backend)
	}
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		QueueSize:                cfg.Int(config.KeyBulkQueueMaxSize),
		QueueRetryCount:          cfg.Int(config.KeyBulkQueueFullRetryCount),
		QueueRetrySleep:          cfg.Duration(config.KeyBulkQueueFullSleepTime),
		EmbedBatchSize:           cfg.Int(config.KeyEmbedderBatchSize),
		EmbedPollSleep:           cfg.Duration(config.KeyEmbedderReadSleep),
		EmbedIdleTimeout:         cfg.Duration(config.KeyEmbedderIdleTimeout),
		StorageBatchSize:         cfg.Int(config.KeyStorageBatchSize),
		StoragePollSleep:         cfg.Duration(config.KeyStorageReadSleep),
		TranscriptionIdleTimeout: cfg.Duration(config.KeyTranscriptionIdleTimeout),
		DownloadIdleTimeout:      cfg.Duration(config.KeyDownloadIdleTimeout),
		TranscriptionDir:         cfg.Str(config.KeyAudioTranscriptionDir),
		ChunkMax:                 cfg.Int(config.KeyChunkCharacterLimit),
	}
}
