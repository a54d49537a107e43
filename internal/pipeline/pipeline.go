// Package pipeline runs the ingestion workers and the queues between them.
//
// Four stages move data toward the vector index: the download worker turns
// URLs into audio files, the transcription worker turns audio into
// transcript text, the embedding worker turns text chunks into vectors, and
// the storage worker persists embedded chunks. Queues are the only channel
// between stages. Wake hooks restart idled-out consumers when new work
// arrives; the storage worker never idles out.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/download"
	"github.com/mvp-joe/mcp-brag/internal/embed"
	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/queue"
	"github.com/mvp-joe/mcp-brag/internal/readers"
	"github.com/mvp-joe/mcp-brag/internal/store"
	"github.com/mvp-joe/mcp-brag/internal/transcribe"
	"github.com/mvp-joe/mcp-brag/internal/worker"
)

// TranscriptionTask is one audio file waiting to be transcribed.
type TranscriptionTask struct {
	ID                string
	AudioPath         string
	AudioFolderPath   string
	Source            string
	SourceType        readers.SourceType
	TaskID            string
	CreatedAt         time.Time
	Meta              store.Meta
	DeleteAudioFolder bool
}

// ChunkIndexer mirrors stored chunks into a secondary index.
type ChunkIndexer interface {
	IndexBatch(items []store.Item) error
}

// Options sizes the queues and tunes worker cadence. Zero values fall back
// to the defaults below.
type Options struct {
	QueueSize       int
	QueueRetryCount int
	QueueRetrySleep time.Duration

	EmbedBatchSize   int
	EmbedPollSleep   time.Duration
	EmbedIdleTimeout time.Duration

	StorageBatchSize int
	StoragePollSleep time.Duration

	TranscriptionIdleTimeout time.Duration
	DownloadIdleTimeout      time.Duration

	// TranscriptionDir receives transcript files named <task id>.txt.
	TranscriptionDir string

	// ChunkMax caps transcript chunk sizes before embedding.
	ChunkMax int

	StopTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 100000
	}
	if o.QueueRetryCount <= 0 {
		o.QueueRetryCount = 100
	}
	if o.QueueRetrySleep <= 0 {
		o.QueueRetrySleep = 100 * time.Millisecond
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 100
	}
	if o.EmbedPollSleep <= 0 {
		o.EmbedPollSleep = 50 * time.Millisecond
	}
	if o.EmbedIdleTimeout <= 0 {
		o.EmbedIdleTimeout = 10 * time.Second
	}
	if o.StorageBatchSize <= 0 {
		o.StorageBatchSize = 1000
	}
	if o.StoragePollSleep <= 0 {
		o.StoragePollSleep = time.Second
	}
	if o.TranscriptionIdleTimeout <= 0 {
		o.TranscriptionIdleTimeout = 10 * time.Second
	}
	if o.DownloadIdleTimeout <= 0 {
		o.DownloadIdleTimeout = 300 * time.Second
	}
	if o.ChunkMax <= 0 {
		o.ChunkMax = 1500
	}
	return o
}

// Deps are the collaborators the workers drive.
type Deps struct {
	Index       store.DataSourceMap
	Embedder    embed.Provider
	Transcriber transcribe.Provider
	Downloader  *download.Downloader
	Progress    *progress.Manager

	// Metrics may be nil; a detached registry is used then.
	Metrics *metrics.Metrics

	// Keyword, when set, receives every stored chunk for secondary
	// indexing. Query embeddings are never mirrored.
	Keyword ChunkIndexer
}

// Pipeline owns the worker runners and the queues connecting them.
type Pipeline struct {
	opts Options
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	embedRead      *queue.Queue[store.Item]
	embedWrite     *queue.Queue[store.Item]
	transcriptions *queue.Queue[TranscriptionTask]
	downloads      *queue.Queue[string]

	embedRunner      *worker.Runner
	storageRunner    *worker.Runner
	transcribeRunner *worker.Runner
	downloadRunner   *worker.Runner
}

// New builds the queues and workers and wires the wake hooks. Workers do
// not run until Start is called or a queue put wakes them.
func New(opts Options, deps Deps, log zerolog.Logger) *Pipeline {
	opts = opts.withDefaults()
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	log = log.With().Str("component", "pipeline").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		opts:           opts,
		log:            log,
		ctx:            ctx,
		cancel:         cancel,
		embedRead:      queue.New[store.Item](opts.QueueSize, opts.QueueRetryCount, opts.QueueRetrySleep),
		embedWrite:     queue.New[store.Item](opts.QueueSize, opts.QueueRetryCount, opts.QueueRetrySleep),
		transcriptions: queue.New[TranscriptionTask](opts.QueueSize, opts.QueueRetryCount, opts.QueueRetrySleep),
		downloads:      queue.New[string](opts.QueueSize, opts.QueueRetryCount, opts.QueueRetrySleep),
	}

	ew := &embedWorker{
		ctx:      ctx,
		in:       p.embedRead,
		out:      p.embedWrite,
		provider: deps.Embedder,
		progress: deps.Progress,
		metrics:  deps.Metrics,
		batch:    opts.EmbedBatchSize,
		log:      log,
	}
	p.embedRunner = worker.New("embedder", opts.EmbedIdleTimeout, opts.EmbedPollSleep, opts.StopTimeout, log, ew.step)

	sw := &storageWorker{
		in:       p.embedWrite,
		index:    deps.Index,
		progress: deps.Progress,
		metrics:  deps.Metrics,
		keyword:  deps.Keyword,
		batch:    opts.StorageBatchSize,
		log:      log,
	}
	p.storageRunner = worker.New("storage", 0, opts.StoragePollSleep, opts.StopTimeout, log, sw.step)

	tw := &transcriptionWorker{
		ctx:      ctx,
		in:       p.transcriptions,
		out:      p.embedRead,
		provider: deps.Transcriber,
		progress: deps.Progress,
		metrics:  deps.Metrics,
		dir:      opts.TranscriptionDir,
		chunkMax: opts.ChunkMax,
		log:      log,
	}
	p.transcribeRunner = worker.New("transcription", opts.TranscriptionIdleTimeout, 0, opts.StopTimeout, log, tw.step)

	dw := &downloadWorker{
		ctx:        ctx,
		in:         p.downloads,
		out:        p.transcriptions,
		downloader: deps.Downloader,
		progress:   deps.Progress,
		metrics:    deps.Metrics,
		log:        log,
	}
	p.downloadRunner = worker.New("download", opts.DownloadIdleTimeout, 0, opts.StopTimeout, log, dw.step)

	p.embedRead.SetWake(p.embedRunner.EnsureRunning)
	p.transcriptions.SetWake(p.transcribeRunner.EnsureRunning)
	p.downloads.SetWake(p.downloadRunner.EnsureRunning)

	deps.Metrics.RegisterQueueDepth("embedder_read", p.embedRead.Len)
	deps.Metrics.RegisterQueueDepth("embedder_write", p.embedWrite.Len)
	deps.Metrics.RegisterQueueDepth("transcription", p.transcriptions.Len)
	deps.Metrics.RegisterQueueDepth("download", p.downloads.Len)
	deps.Metrics.RegisterWorker("embedder", p.embedRunner.IsRunning)
	deps.Metrics.RegisterWorker("storage", p.storageRunner.IsRunning)
	deps.Metrics.RegisterWorker("transcription", p.transcribeRunner.IsRunning)
	deps.Metrics.RegisterWorker("download", p.downloadRunner.IsRunning)

	return p
}

// Start launches the always-on workers. The embedding worker starts eagerly
// so queued work drains without waiting for a wake; the storage worker
// never idles out. Download and transcription workers start on demand.
func (p *Pipeline) Start() {
	p.storageRunner.EnsureRunning()
	p.embedRunner.EnsureRunning()
}

// Stop cancels in-flight provider calls and shuts the workers down,
// upstream stages first.
func (p *Pipeline) Stop() {
	p.cancel()
	p.downloadRunner.Stop()
	p.transcribeRunner.Stop()
	p.embedRunner.Stop()
	p.storageRunner.Stop()
}

// EmbedderRead is the queue feeding text chunks to the embedding worker.
func (p *Pipeline) EmbedderRead() *queue.Queue[store.Item] { return p.embedRead }

// Transcriptions is the queue feeding audio tasks to the transcription
// worker.
func (p *Pipeline) Transcriptions() *queue.Queue[TranscriptionTask] { return p.transcriptions }

// Downloads is the queue feeding URLs to the download worker.
func (p *Pipeline) Downloads() *queue.Queue[string] { return p.downloads }
