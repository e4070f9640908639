// Package metrics provides Prometheus metrics collection for the ETA service.
// It defines the prediction, model runtime and HTTP metrics that are exposed
// via the /metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ETA service.
type Metrics struct {
	// Prediction metrics
	Predictions       *prometheus.CounterVec // Served predictions by method
	ModelFailures     prometheus.Counter     // Model invocations that failed and degraded to the formula
	FallbackUse       prometheus.Counter     // Predictions answered by the fallback formula
	UnknownFeatures   *prometheus.CounterVec // Schema entries with no derivation, by feature name
	PredictionLatency prometheus.Histogram   // End-to-end prediction latency in seconds
	ETAMinutes        prometheus.Histogram   // Distribution of served ETA values

	// Model runtime metrics
	ModelAge      prometheus.Gauge     // Age of the loaded model artifact in seconds
	ModelTimeouts prometheus.Counter   // Model invocations that hit the predict timeout
	ModelLatency  prometheus.Histogram // Raw model invocation latency in seconds
	CacheHits     prometheus.Counter   // Model output cache hits
	CacheMisses   prometheus.Counter   // Model output cache misses

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration *prometheus.HistogramVec // Request duration by route

	// Storage metrics
	RecordErrors prometheus.Counter // Prediction records that could not be persisted
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eta_predictions_total",
			Help: "Total number of ETA predictions served, by method",
		}, []string{"method"}),
		ModelFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "eta_model_failures_total",
			Help: "Total number of model invocations that failed",
		}),
		FallbackUse: factory.NewCounter(prometheus.CounterOpts{
			Name: "eta_fallback_use_total",
			Help: "Total number of predictions answered by the fallback formula",
		}),
		UnknownFeatures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eta_unknown_features_total",
			Help: "Total number of feature values defaulted to zero because the name has no derivation",
		}, []string{"feature"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eta_prediction_latency_seconds",
			Help:    "ETA prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ETAMinutes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eta_minutes",
			Help:    "Distribution of served ETA values in minutes",
			Buckets: []float64{10, 15, 20, 30, 45, 60, 90, 120, 180, 240, 360, 480},
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eta_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		ModelTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "eta_model_timeouts_total",
			Help: "Total number of model invocations that timed out",
		}),
		ModelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eta_model_latency_seconds",
			Help:    "Model invocation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "eta_model_cache_hits_total",
			Help: "Total number of model output cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "eta_model_cache_misses_total",
			Help: "Total number of model output cache misses",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eta_http_requests_total",
			Help: "Total number of HTTP requests, by route and status code",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eta_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RecordErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "eta_record_errors_total",
			Help: "Total number of prediction records that could not be persisted",
		}),
	}
}

// FallbackRate returns the share of served predictions that used the
// fallback formula, or 0 when nothing has been served yet.
func (m *Metrics) FallbackRate(gatherer prometheus.Gatherer) float64 {
	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return 0
	}

	var total, fallback float64
	for _, mf := range metricFamilies {
		if mf.GetName() != "eta_predictions_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			value := metric.GetCounter().GetValue()
			total += value
			for _, label := range metric.GetLabel() {
				if label.GetName() == "method" && label.GetValue() == "fallback_formula" {
					fallback += value
				}
			}
		}
	}

	if total == 0 {
		return 0
	}
	return fallback / total
}
