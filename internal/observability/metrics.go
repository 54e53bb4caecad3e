package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "peakflow"

// Run kinds used as the "kind" label.
const (
	KindRun      = "run"
	KindRerun    = "rerun"
	KindScenario = "scenario"
)

// Metrics holds the Prometheus counters and histograms for peak-flow runs.
type Metrics struct {
	Runs                *prometheus.CounterVec   // labels: kind={run,rerun,scenario}
	RunDuration         *prometheus.HistogramVec // labels: kind
	CatchmentsProcessed prometheus.Counter
	CatchmentsInvalid   prometheus.Counter
	RecordErrors        prometheus.Counter
	CatchmentsPerRun    prometheus.Histogram

	// Delivery and scheduling.
	RowsPublished   prometheus.Counter
	ScheduledReruns *prometheus.CounterVec // labels: outcome={success,skipped,error}
	PrecipCache     *prometheus.CounterVec // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by kind.",
		}, []string{"kind"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a run from ingestion to the converted results table.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),
		CatchmentsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catchments_processed_total",
			Help:      "Catchments that produced a result row.",
		}),
		CatchmentsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catchments_invalid_total",
			Help:      "Catchments reported with zero discharge because of invalid data.",
		}),
		RecordErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catchment_record_errors_total",
			Help:      "Catchment records rejected at ingestion.",
		}),
		CatchmentsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catchments_per_run",
			Help:      "Number of catchments submitted per run.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		RowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_published_total",
			Help:      "Result rows written to the results topic.",
		}),
		ScheduledReruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_reruns_total",
			Help:      "Scheduled scenario reruns by outcome.",
		}, []string{"outcome"}),
		PrecipCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precip_cache_total",
			Help:      "Precipitation table cache lookups by result.",
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs,
		m.RunDuration,
		m.CatchmentsProcessed,
		m.CatchmentsInvalid,
		m.RecordErrors,
		m.CatchmentsPerRun,
		m.RowsPublished,
		m.ScheduledReruns,
		m.PrecipCache,
	}
}
