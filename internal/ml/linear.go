package ml

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// LinearModel evaluates intercept + Σ wᵢ·xᵢ in-process. Weights are aligned
// to the schema at construction; names without a weight contribute zero.
type LinearModel struct {
	weights   []float64
	intercept float64
}

func NewLinearModel(schema []string, weights map[string]float64, intercept float64) *LinearModel {
	aligned := make([]float64, len(schema))
	for i, name := range schema {
		aligned[i] = weights[name]
	}
	return &LinearModel{weights: aligned, intercept: intercept}
}

func (m *LinearModel) Predict(_ context.Context, features []float64) (float64, error) {
	if len(features) != len(m.weights) {
		return 0, fmt.Errorf("%w: expected %d features, got %d", ErrPrediction, len(m.weights), len(features))
	}
	return m.intercept + floats.Dot(m.weights, features), nil
}
