// Package observability builds the rebuild's Prometheus metrics and slog
// loggers. Metrics satisfies both strength.Recorder and connectivity.Recorder.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "synstrength"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	ResponsesProcessed prometheus.Counter
	BatchesCommitted   prometheus.Counter
	BatchDuration      prometheus.Histogram
	RangesFailed       prometheus.Counter
	SummariesWritten   prometheus.Counter
	// PairsSkipped is labelled by reason (empty, below_min_samples, storage).
	PairsSkipped    *prometheus.CounterVec
	RebuildDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics registers all collectors on reg. A nil reg gets a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ResponsesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "strength",
			Name: "responses_processed_total",
			Help: "Pulse responses whose features were committed.",
		}),
		BatchesCommitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "strength",
			Name: "batches_committed_total",
			Help: "Feature batches committed.",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "strength",
			Name:    "batch_duration_seconds",
			Help:    "Fetch, compute and commit time per batch.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		RangesFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "strength",
			Name: "ranges_failed_total",
			Help: "Processor ranges that stopped on an error.",
		}),
		SummariesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "connectivity",
			Name: "pairs_written_total",
			Help: "Connection summaries written.",
		}),
		PairsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "connectivity",
			Name: "pairs_skipped_total",
			Help: "Channel pairs without a summary, by reason.",
		}, []string{"reason"}),
		RebuildDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rebuild_duration_seconds",
			Help:      "Wall time of a full rebuild, by final status.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"status"}),
		registry: reg,
	}
}

func (m *Metrics) BatchCommitted(rows int, elapsed time.Duration) {
	m.ResponsesProcessed.Add(float64(rows))
	m.BatchesCommitted.Inc()
	m.BatchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RangeFailed() { m.RangesFailed.Inc() }

func (m *Metrics) PairsWritten(n int) { m.SummariesWritten.Add(float64(n)) }

func (m *Metrics) PairSkipped(reason string) { m.PairsSkipped.WithLabelValues(reason).Inc() }

// RebuildFinished observes one rebuild's duration under its status.
func (m *Metrics) RebuildFinished(status string, elapsed time.Duration) {
	m.RebuildDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
