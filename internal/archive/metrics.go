package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for archive builds.
type Metrics struct {
	// ArchiveTotal counts builds by result (success, invalid, too_large, error).
	ArchiveTotal *prometheus.CounterVec
	// FilesTotal counts archived files.
	FilesTotal prometheus.Counter
	// BytesTotal counts uncompressed bytes read into archives.
	BytesTotal prometheus.Counter
	// ArchiveSize observes the compressed size of each archive.
	ArchiveSize prometheus.Histogram
}

// NewMetrics creates the archive metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ArchiveTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "projectkit",
				Subsystem: "archive",
				Name:      "builds_total",
				Help:      "Total number of archive builds by result",
			},
			[]string{"result"},
		),
		FilesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "projectkit",
				Subsystem: "archive",
				Name:      "files_total",
				Help:      "Total number of files added to archives",
			},
		),
		BytesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "projectkit",
				Subsystem: "archive",
				Name:      "uncompressed_bytes_total",
				Help:      "Total number of uncompressed bytes added to archives",
			},
		),
		ArchiveSize: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "projectkit",
				Subsystem: "archive",
				Name:      "size_bytes",
				Help:      "Compressed size of built archives in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
			},
		),
	}
}

func (m *Metrics) record(result string, files int, raw, compressed int64) {
	if m == nil {
		return
	}
	m.ArchiveTotal.WithLabelValues(result).Inc()
	if result != "success" {
		return
	}
	m.FilesTotal.Add(float64(files))
	m.BytesTotal.Add(float64(raw))
	m.ArchiveSize.Observe(float64(compressed))
}
