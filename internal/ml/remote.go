package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteModel delegates inference to a model server that accepts
// {"features": [...]} and answers {"prediction": <minutes>}.
type RemoteModel struct {
	endpoint string
	rest     *resty.Client
	metrics  MetricsInterface
}

type remoteResponse struct {
	Prediction *float64 `json:"prediction"`
	Error      string   `json:"error,omitempty"`
}

func NewRemoteModel(endpoint string, timeout time.Duration, metrics MetricsInterface) *RemoteModel {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Content-Type", "application/json")
	return &RemoteModel{endpoint: endpoint, rest: r, metrics: metrics}
}

func (m *RemoteModel) Predict(ctx context.Context, features []float64) (float64, error) {
	resp := &remoteResponse{}
	res, err := m.rest.R().
		SetContext(ctx).
		SetBody(inferenceRequest{Features: features}).
		SetResult(resp).
		SetError(resp).
		Post(m.endpoint)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.metrics.ModelTimeoutsInc()
		}
		return 0, fmt.Errorf("%w: remote model: %v", ErrPrediction, err)
	}
	if res.IsError() {
		return 0, fmt.Errorf("%w: remote model: %d %s", ErrPrediction, res.StatusCode(), resp.Error)
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: remote model: %s", ErrPrediction, resp.Error)
	}
	if resp.Prediction == nil {
		return 0, fmt.Errorf("%w: remote model response carries no prediction", ErrPrediction)
	}
	return *resp.Prediction, nil
}
