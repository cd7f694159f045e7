package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "accidents_etl"

// Metrics holds the Prometheus counters and histograms for ingestion, loading
// and analytics.
type Metrics struct {
	registry prometheus.Registerer

	// Ingestion metrics.
	YearsFetched     prometheus.Counter
	YearsSkipped     prometheus.Counter
	RecordsFetched   prometheus.Counter
	ArtifactsWritten *prometheus.CounterVec // labels: format={jsonl,csv}
	Uploads          *prometheus.CounterVec // labels: format, outcome={success,error}

	// Load metrics.
	RowsLoaded           prometheus.Counter
	RowsDropped          prometheus.Counter
	ChunksFailed         prometheus.Counter
	ArtifactLoadDuration prometheus.Histogram

	// Analytics metrics.
	QueryDuration *prometheus.HistogramVec // labels: query
	QueryCache    *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(prometheus.DefaultRegisterer)
	m.mustRegister()
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics(prometheus.NewRegistry())
	m.mustRegister()
	return m
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		registry: reg,
		YearsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "years_fetched_total",
			Help:      "Years for which the source API returned records.",
		}),
		YearsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "years_skipped_total",
			Help:      "Years skipped because the source returned nothing or a step failed.",
		}),
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Accident records fetched from the source API.",
		}),
		ArtifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "Raw artifacts written to local storage by format.",
		}, []string{"format"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Artifact uploads by format and outcome.",
		}, []string{"format", "outcome"}),
		RowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Normalized rows committed to the relational store.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows excluded during normalization.",
		}),
		ChunksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_failed_total",
			Help:      "Load chunks rolled back after an insert error.",
		}),
		ArtifactLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_load_duration_seconds",
			Help:      "Duration of loading one raw artifact.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_query_duration_seconds",
			Help:      "Analytics query duration by query name.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"query"}),
		QueryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_cache_total",
			Help:      "Analytics cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.YearsFetched,
		m.YearsSkipped,
		m.RecordsFetched,
		m.ArtifactsWritten,
		m.Uploads,
		m.RowsLoaded,
		m.RowsDropped,
		m.ChunksFailed,
		m.ArtifactLoadDuration,
		m.QueryDuration,
		m.QueryCache,
	}
}

func (m *Metrics) mustRegister() {
	m.registry.MustRegister(m.collectors()...)
}
