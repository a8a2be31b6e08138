package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the loader.
type Metrics struct {
	// Hilltop API metrics.
	HilltopRequests *prometheus.CounterVec   // labels: request={site_list,measurement_list}, outcome={success,http_error,parse_error}
	HilltopDuration *prometheus.HistogramVec // labels: request={site_list,measurement_list}

	// Enrichment metrics.
	MeasurementOutcomes *prometheus.CounterVec // labels: status={present,not_found,unreachable,malformed}
	CacheLookups        *prometheus.CounterVec // labels: result={hit,miss,invalid}

	// Load metrics.
	RecordsLoaded    prometheus.Counter
	RecordsPublished prometheus.Counter
	LoadDuration     prometheus.Histogram
	LastSuccess      prometheus.Gauge
	SinkConflicts    prometheus.Counter
	PipelineRunning  prometheus.Gauge
}

// NewMetrics creates and registers all loader metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		HilltopRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hilltop_loader",
			Name:      "hilltop_requests_total",
			Help:      "Hilltop API requests by request kind and outcome.",
		}, []string{"request", "outcome"}),
		HilltopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hilltop_loader",
			Name:      "hilltop_request_duration_seconds",
			Help:      "Hilltop API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"request"}),
		MeasurementOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hilltop_loader",
			Name:      "measurement_outcomes_total",
			Help:      "Measurement resolutions by resulting status.",
		}, []string{"status"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hilltop_loader",
			Name:      "cache_lookups_total",
			Help:      "Enriched dataset cache lookups by result.",
		}, []string{"result"}),
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hilltop_loader",
			Name:      "records_loaded_total",
			Help:      "Total enriched records written to the GIS sink.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hilltop_loader",
			Name:      "records_published_total",
			Help:      "Total enriched records published to Kafka.",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hilltop_loader",
			Name:      "load_duration_seconds",
			Help:      "Duration of a complete enrich-and-load run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hilltop_loader",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful load run.",
		}),
		SinkConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hilltop_loader",
			Name:      "sink_conflicts_total",
			Help:      "Sink steps skipped because the target existed and overwrite was disabled.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hilltop_loader",
			Name:      "pipeline_running",
			Help:      "1 while a load run is in progress, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.HilltopRequests,
		m.HilltopDuration,
		m.MeasurementOutcomes,
		m.CacheLookups,
		m.RecordsLoaded,
		m.RecordsPublished,
		m.LoadDuration,
		m.LastSuccess,
		m.SinkConflicts,
		m.PipelineRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		HilltopRequests:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hilltop_loader", Name: "hilltop_requests_total"}, []string{"request", "outcome"}),
		HilltopDuration:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "hilltop_loader", Name: "hilltop_request_duration_seconds"}, []string{"request"}),
		MeasurementOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hilltop_loader", Name: "measurement_outcomes_total"}, []string{"status"}),
		CacheLookups:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hilltop_loader", Name: "cache_lookups_total"}, []string{"result"}),
		RecordsLoaded:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hilltop_loader", Name: "records_loaded_total"}),
		RecordsPublished:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hilltop_loader", Name: "records_published_total"}),
		LoadDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "hilltop_loader", Name: "load_duration_seconds"}),
		LastSuccess:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "hilltop_loader", Name: "last_success_timestamp_seconds"}),
		SinkConflicts:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hilltop_loader", Name: "sink_conflicts_total"}),
		PipelineRunning:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "hilltop_loader", Name: "pipeline_running"}),
	}
}
