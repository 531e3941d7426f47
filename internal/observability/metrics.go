package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chunk outcome labels.
const (
	ChunkStatusOK     = "ok"
	ChunkStatusFailed = "failed"
)

// Metrics owns the prometheus collectors for load and provisioning work.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	rowsLoaded *prometheus.CounterVec
	chunks     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	rowsLoaded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddbridge_rows_loaded_total",
			Help: "Rows written into warehouse tables, partitioned by load path.",
		},
		[]string{"path"},
	)
	chunks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddbridge_chunks_total",
			Help: "Chunked insert batches, partitioned by outcome.",
		},
		[]string{"status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddbridge_operation_duration_seconds",
			Help:    "Duration of warehouse operations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	for _, c := range []prometheus.Collector{rowsLoaded, chunks, duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return &Metrics{
		reg:        reg,
		rowsLoaded: rowsLoaded,
		chunks:     chunks,
		duration:   duration,
	}, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// AddRowsLoaded counts rows written through the given path
// ("direct", "staged" or "chunked").
func (m *Metrics) AddRowsLoaded(path string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsLoaded.WithLabelValues(path).Add(float64(n))
}

// IncChunk counts one chunk outcome.
func (m *Metrics) IncChunk(status string) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(status).Inc()
}

// ObserveDuration records how long an operation took since start.
func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
