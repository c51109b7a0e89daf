package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for the import pipeline.
type Metrics struct {
	JobsClaimed       prometheus.Counter
	JobsCompleted     prometheus.Counter
	JobsFailed        *prometheus.CounterVec // label: kind
	ImportsInFlight   prometheus.Gauge
	ImportDuration    prometheus.Histogram
	ReadingsInserted  prometheus.Counter
	ReadingsDuplicate prometheus.Counter
}

// NewMetrics creates and registers all importer metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.JobsClaimed,
		m.JobsCompleted,
		m.JobsFailed,
		m.ImportsInFlight,
		m.ImportDuration,
		m.ReadingsInserted,
		m.ReadingsDuplicate,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so parallel
// tests do not trip "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fopr_import",
			Name:      "jobs_claimed_total",
			Help:      "Total jobs claimed by workers.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fopr_import",
			Name:      "jobs_completed_total",
			Help:      "Total jobs that finished successfully.",
		}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fopr_import",
			Name:      "jobs_failed_total",
			Help:      "Total failed import attempts by error kind.",
		}, []string{"kind"}),
		ImportsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fopr_import",
			Name:      "imports_in_flight",
			Help:      "Number of imports currently executing.",
		}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fopr_import",
			Name:      "import_duration_seconds",
			Help:      "Duration of one complete station import.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ReadingsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fopr_import",
			Name:      "readings_inserted_total",
			Help:      "Total new readings written to storage.",
		}),
		ReadingsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fopr_import",
			Name:      "readings_duplicate_total",
			Help:      "Total readings skipped because the day already existed.",
		}),
	}
}
