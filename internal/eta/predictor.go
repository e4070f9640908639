// Package eta holds the prediction-serving decision logic: request
// validation, feature vector construction, the model-or-formula branch and
// the bounded, human readable result.
package eta

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"eta-service/internal/ml"
)

// Prediction methods reported to callers.
const (
	MethodML       = "ml_prediction"
	MethodFallback = "fallback_formula"
)

// Confidence is fixed per method and does not reflect model uncertainty.
const (
	ModelConfidence    = 0.85
	FallbackConfidence = 0.6
)

// Model outputs are clamped to this range, in minutes.
const (
	MinModelMinutes = 10
	MaxModelMinutes = 480
)

// Clock returns the current time. It supplies the hour_of_day default.
type Clock func() time.Time

// MetricsInterface defines the metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsInc(method string)
	ModelFailuresInc()
	FallbackUseInc()
	UnknownFeatureInc(name string)
	PredictionLatencyObserve(float64)
	ETAMinutesObserve(float64)
}

type noopMetrics struct{}

func (noopMetrics) PredictionsInc(string)            {}
func (noopMetrics) ModelFailuresInc()                {}
func (noopMetrics) FallbackUseInc()                  {}
func (noopMetrics) UnknownFeatureInc(string)         {}
func (noopMetrics) PredictionLatencyObserve(float64) {}
func (noopMetrics) ETAMinutesObserve(float64)        {}

// PredictionResult is the outcome of one prediction.
type PredictionResult struct {
	ETAMinutes   int
	ETAFormatted string
	Confidence   float64
	Method       string
	ModelVersion string // empty on the fallback path
	Request      PredictionRequest
}

// Predictor turns raw requests into ETAs. It is safe for concurrent use;
// all of its state is read-only after construction.
type Predictor struct {
	handle  *ml.Handle
	schema  []string
	unknown []string
	clock   Clock
	metrics MetricsInterface
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithClock overrides the wall clock used for the hour_of_day default.
func WithClock(clock Clock) Option {
	return func(p *Predictor) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func WithMetrics(metrics MetricsInterface) Option {
	return func(p *Predictor) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

// NewPredictor builds a predictor around an optional model handle. A nil
// handle serves every request from the fallback formula.
func NewPredictor(handle *ml.Handle, opts ...Option) *Predictor {
	p := &Predictor{
		handle:  handle,
		clock:   time.Now,
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}

	if handle.Loaded() {
		p.schema = handle.Features()
		p.unknown = UnknownFeatures(p.schema)
		for _, name := range p.unknown {
			log.Warn().
				Str("feature", name).
				Str("model_version", handle.Version()).
				Msg("model feature has no derivation, it will always be 0")
		}
	} else {
		log.Info().Msg("no model loaded, serving fallback formula")
	}

	return p
}

// ModelLoaded reports whether predictions may take the model path.
func (p *Predictor) ModelLoaded() bool {
	return p.handle.Loaded()
}

// Predict validates raw and returns an ETA. The only error it returns is a
// *ValidationError; model failures degrade to the fallback formula.
func (p *Predictor) Predict(ctx context.Context, raw map[string]any) (PredictionResult, error) {
	start := time.Now()

	req, err := ParseRequest(raw, p.clock())
	if err != nil {
		return PredictionResult{}, err
	}

	result := PredictionResult{Request: req}

	if p.handle.Loaded() {
		minutes, err := p.predictWithModel(ctx, req)
		if err == nil {
			result.ETAMinutes = int(math.RoundToEven(clamp(minutes, MinModelMinutes, MaxModelMinutes)))
			result.Confidence = ModelConfidence
			result.Method = MethodML
			result.ModelVersion = p.handle.Version()
		} else {
			p.metrics.ModelFailuresInc()
			log.Warn().
				Err(err).
				Float64("distance", req.Distance).
				Int("hour_of_day", req.HourOfDay).
				Int("traffic_level", req.TrafficLevel).
				Msg("model prediction failed, using fallback formula")
		}
	}

	if result.Method == "" {
		result.ETAMinutes = Estimate(req.Distance, req.HourOfDay, req.TrafficLevel)
		result.Confidence = FallbackConfidence
		result.Method = MethodFallback
		p.metrics.FallbackUseInc()
	}

	result.ETAFormatted = Format(result.ETAMinutes)

	p.metrics.PredictionsInc(result.Method)
	p.metrics.ETAMinutesObserve(float64(result.ETAMinutes))
	p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())

	return result, nil
}

func (p *Predictor) predictWithModel(ctx context.Context, req PredictionRequest) (minutes float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: model panicked: %v", ml.ErrPrediction, r)
		}
	}()

	for _, name := range p.unknown {
		p.metrics.UnknownFeatureInc(name)
	}

	minutes, err = p.handle.Predict(ctx, BuildVector(p.schema, req))
	if err != nil {
		return 0, err
	}
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return 0, fmt.Errorf("%w: non-finite model output %v", ml.ErrPrediction, minutes)
	}
	return minutes, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
