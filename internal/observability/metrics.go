package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RowsExtracted   *prometheus.CounterVec // labels: source={api,db,csv}
	RowsLoaded      prometheus.Counter
	StageErrors     *prometheus.CounterVec // labels: stage
	PipelineRunning prometheus.Gauge

	// Per-run processing metrics.
	RunDuration   prometheus.Histogram
	StageDuration *prometheus.HistogramVec // labels: stage

	// Anomaly engine metrics.
	AnomaliesDetected *prometheus.CounterVec // labels: metric={energy,wind,temperature}
	AnomaliesRepaired *prometheus.CounterVec // labels: metric
	MissingImputed    prometheus.Counter

	// Weather API client metrics.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,error}
	WeatherCache       *prometheus.CounterVec // labels: result={hit,miss}
	WeatherAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RowsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windfarm_etl",
			Name:      "rows_extracted_total",
			Help:      "Total rows read from a source, by source kind.",
		}, []string{"source"}),
		RowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "windfarm_etl",
			Name:      "rows_loaded_total",
			Help:      "Total rows written to the configured sinks.",
		}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windfarm_etl",
			Name:      "stage_errors_total",
			Help:      "Total stage failures, by stage name.",
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "windfarm_etl",
			Name:      "pipeline_running",
			Help:      "1 when a pipeline run is active, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "windfarm_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-transform-load run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "windfarm_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of a single transform stage.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windfarm_etl",
			Name:      "anomalies_detected_total",
			Help:      "Values flagged as anomalous, by metric class.",
		}, []string{"metric"}),
		AnomaliesRepaired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windfarm_etl",
			Name:      "anomalies_repaired_total",
			Help:      "Flagged values replaced by the group median, by metric class.",
		}, []string{"metric"}),
		MissingImputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "windfarm_etl",
			Name:      "missing_values_imputed_total",
			Help:      "Missing values filled during cleaning.",
		}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windfarm_etl",
			Name:      "weather_requests_total",
			Help:      "Weather API requests by outcome.",
		}, []string{"outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windfarm_etl",
			Name:      "weather_cache_total",
			Help:      "Weather response cache lookups by result.",
		}, []string{"result"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "windfarm_etl",
			Name:      "weather_api_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	prometheus.MustRegister(
		m.RowsExtracted,
		m.RowsLoaded,
		m.StageErrors,
		m.PipelineRunning,
		m.RunDuration,
		m.StageDuration,
		m.AnomaliesDetected,
		m.AnomaliesRepaired,
		m.MissingImputed,
		m.WeatherRequests,
		m.WeatherCache,
		m.WeatherAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RowsExtracted:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "windfarm_etl", Name: "rows_extracted_total"}, []string{"source"}),
		RowsLoaded:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "windfarm_etl", Name: "rows_loaded_total"}),
		StageErrors:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "windfarm_etl", Name: "stage_errors_total"}, []string{"stage"}),
		PipelineRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "windfarm_etl", Name: "pipeline_running"}),
		RunDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "windfarm_etl", Name: "run_duration_seconds"}),
		StageDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "windfarm_etl", Name: "stage_duration_seconds"}, []string{"stage"}),
		AnomaliesDetected:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "windfarm_etl", Name: "anomalies_detected_total"}, []string{"metric"}),
		AnomaliesRepaired:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "windfarm_etl", Name: "anomalies_repaired_total"}, []string{"metric"}),
		MissingImputed:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "windfarm_etl", Name: "missing_values_imputed_total"}),
		WeatherRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "windfarm_etl", Name: "weather_requests_total"}, []string{"outcome"}),
		WeatherCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "windfarm_etl", Name: "weather_cache_total"}, []string{"result"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "windfarm_etl", Name: "weather_api_duration_seconds"}),
	}
}
