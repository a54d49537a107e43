// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "brag"

// Metrics bundles every collector on a private registry, so parallel tests
// never collide on the default registry.
type Metrics struct {
	reg *prometheus.Registry

	EmbedBatches          prometheus.Counter
	EmbedFailures         prometheus.Counter
	ChunksEmbedded        prometheus.Counter
	ChunksStored          prometheus.Counter
	Transcriptions        prometheus.Counter
	TranscriptionFailures prometheus.Counter
	Downloads             prometheus.Counter
	DownloadFailures      prometheus.Counter
	SourcesCompleted      prometheus.Counter
	SourcesFailed         prometheus.Counter
	Searches              *prometheus.CounterVec
	SearchSeconds         prometheus.Histogram
}

// New creates a Metrics with every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		EmbedBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_batches_total",
			Help:      "Batches handed to the embedding provider.",
		}),
		EmbedFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_failures_total",
			Help:      "Batches dropped because the embedding provider failed.",
		}),
		ChunksEmbedded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_embedded_total",
			Help:      "Text chunks vectorized by the embedding worker.",
		}),
		ChunksStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_stored_total",
			Help:      "Embedded chunks persisted to the vector index.",
		}),
		Transcriptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Audio files transcribed.",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Transcription tasks that failed.",
		}),
		Downloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Audio downloads completed.",
		}),
		DownloadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_failures_total",
			Help:      "Audio downloads that failed.",
		}),
		SourcesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_completed_total",
			Help:      "Data sources whose ingestion finished successfully.",
		}),
		SourcesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_failed_total",
			Help:      "Data sources whose ingestion failed.",
		}),
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search requests served, by kind.",
		}, []string{"kind"}),
		SearchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// RegisterQueueDepth exposes a queue's live depth as a gauge.
func (m *Metrics) RegisterQueueDepth(queue string, depth func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Items currently queued between pipeline stages.",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, func() float64 { return float64(depth()) }))
}

// RegisterWorker exposes a worker's running state as a 0/1 gauge.
func (m *Metrics) RegisterWorker(worker string, running func() bool) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "worker_running",
		Help:        "Whether the worker goroutine is currently alive.",
		ConstLabels: prometheus.Labels{"worker": worker},
	}, func() float64 {
		if running() {
			return 1
		}
		return 0
	}))
}
