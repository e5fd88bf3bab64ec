package project

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for materialize calls.
//
// Metrics:
//   - projectkit_project_materialize_total{result} - calls by outcome (success, invalid, error)
//   - projectkit_project_files_written_total - files committed to disk
//   - projectkit_project_bytes_written_total - content bytes committed to disk
//   - projectkit_project_materialize_duration_seconds - call latency
type Metrics struct {
	MaterializeTotal    *prometheus.CounterVec
	FilesWrittenTotal   prometheus.Counter
	BytesWrittenTotal   prometheus.Counter
	MaterializeDuration prometheus.Histogram
}

// NewMetrics creates the materialize metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics
// handler. Registering twice with the same registerer panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MaterializeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "projectkit",
				Subsystem: "project",
				Name:      "materialize_total",
				Help:      "Total number of materialize calls by result",
			},
			[]string{"result"},
		),
		FilesWrittenTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "projectkit",
				Subsystem: "project",
				Name:      "files_written_total",
				Help:      "Total number of files written into projects",
			},
		),
		BytesWrittenTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "projectkit",
				Subsystem: "project",
				Name:      "bytes_written_total",
				Help:      "Total number of content bytes written into projects",
			},
		),
		MaterializeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "projectkit",
				Subsystem: "project",
				Name:      "materialize_duration_seconds",
				Help:      "Duration of materialize calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
		),
	}
}

func (m *Metrics) recordFile(n int) {
	if m == nil {
		return
	}
	m.FilesWrittenTotal.Inc()
	m.BytesWrittenTotal.Add(float64(n))
}

func (m *Metrics) recordCall(result string, seconds float64) {
	if m == nil {
		return
	}
	m.MaterializeTotal.WithLabelValues(result).Inc()
	m.MaterializeDuration.Observe(seconds)
}
