// Package ml provides the trained-model side of the ETA service: the Model
// capability, the artifact manifest that describes a trained model, the
// runtimes able to evaluate one (in-process linear, Python subprocess and
// remote HTTP) and the read-only Handle that carries the loaded model
// through the request path.
//
// A missing or unusable artifact is never fatal. LoadHandle reports why no
// model is available and callers continue with the fallback formula.
package ml

import (
	"context"
	"errors"
)

var (
	// ErrModelNotFound indicates no artifact exists at the configured path
	ErrModelNotFound = errors.New("model artifact not found")

	// ErrInvalidArtifact indicates the artifact manifest could not be used
	ErrInvalidArtifact = errors.New("invalid model artifact")

	// ErrRuntimeUnavailable indicates the runtime needed by the artifact is missing
	ErrRuntimeUnavailable = errors.New("model runtime unavailable")

	// ErrPrediction indicates a model invocation failed
	ErrPrediction = errors.New("model prediction failed")
)

// Model is the single capability the serving path needs from a trained
// model. Implementations must be safe for concurrent use.
type Model interface {
	// Predict returns the predicted ETA in minutes for a feature vector
	// aligned to the artifact's feature schema.
	Predict(ctx context.Context, features []float64) (float64, error)
}

// ModelFunc adapts a plain function to the Model interface.
type ModelFunc func(ctx context.Context, features []float64) (float64, error)

func (f ModelFunc) Predict(ctx context.Context, features []float64) (float64, error) {
	return f(ctx, features)
}

// MetricsInterface defines the metrics methods needed by the model runtimes
type MetricsInterface interface {
	ModelAgeSet(float64)
	ModelTimeoutsInc()
	ModelLatencyObserve(float64)
	CacheHitsInc()
	CacheMissesInc()
}

type noopMetrics struct{}

func (noopMetrics) ModelAgeSet(float64)         {}
func (noopMetrics) ModelTimeoutsInc()           {}
func (noopMetrics) ModelLatencyObserve(float64) {}
func (noopMetrics) CacheHitsInc()               {}
func (noopMetrics) CacheMissesInc()             {}
