package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces declared by the
// eta, ml and api packages so that none of them import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc(method string) {
	w.m.Predictions.WithLabelValues(method).Inc()
}

func (w *MetricsWrapper) ModelFailuresInc() {
	w.m.ModelFailures.Inc()
}

func (w *MetricsWrapper) FallbackUseInc() {
	w.m.FallbackUse.Inc()
}

func (w *MetricsWrapper) UnknownFeatureInc(name string) {
	w.m.UnknownFeatures.WithLabelValues(name).Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *MetricsWrapper) ETAMinutesObserve(minutes float64) {
	w.m.ETAMinutes.Observe(minutes)
}

func (w *MetricsWrapper) ModelAgeSet(seconds float64) {
	w.m.ModelAge.Set(seconds)
}

func (w *MetricsWrapper) ModelTimeoutsInc() {
	w.m.ModelTimeouts.Inc()
}

func (w *MetricsWrapper) ModelLatencyObserve(seconds float64) {
	w.m.ModelLatency.Observe(seconds)
}

func (w *MetricsWrapper) CacheHitsInc() {
	w.m.CacheHits.Inc()
}

func (w *MetricsWrapper) CacheMissesInc() {
	w.m.CacheMisses.Inc()
}

func (w *MetricsWrapper) HTTPRequestObserve(route string, status int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

func (w *MetricsWrapper) RecordErrorsInc() {
	w.m.RecordErrors.Inc()
}
