package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "landpipe"

// Metrics holds the Prometheus counters and histograms for the campaign pipeline.
type Metrics struct {
	RunsTotal             *prometheus.CounterVec // labels: outcome={success,inconsistent,error}
	RunDuration           prometheus.Histogram
	BatchSize             prometheus.Histogram
	RecordsClassified     *prometheus.CounterVec // labels: confidence
	RecordsRouted         *prometheus.CounterVec // labels: channel
	ExcludedRows          *prometheus.CounterVec // labels: reason
	ConsistencyViolations *prometheus.CounterVec // labels: check

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,no_result,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge

	// Publishing metrics.
	MessagesProduced *prometheus.CounterVec // labels: topic
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.BatchSize,
		m.RecordsClassified,
		m.RecordsRouted,
		m.ExcludedRows,
		m.ConsistencyViolations,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
		m.MessagesProduced,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete classification run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of ownership rows per run.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		RecordsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_classified_total",
			Help:      "Classified records by confidence tier.",
		}, []string{"confidence"}),
		RecordsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_routed_total",
			Help:      "Classified records by outreach channel.",
		}, []string{"channel"}),
		ExcludedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "excluded_rows_total",
			Help:      "Input rows excluded before classification, by reason.",
		}, []string{"reason"}),
		ConsistencyViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_violations_total",
			Help:      "Failed cross-table consistency checks, by check.",
		}, []string{"check"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding lookups by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when live geocoding is enabled, 0 otherwise.",
		}),
		MessagesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Messages written to Kafka, by topic.",
		}, []string{"topic"}),
	}
}
