// Package etaclient is a Go client for the ETA service. When the service
// cannot answer, PredictETA computes the fallback formula locally so
// callers always get an estimate.
package etaclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"eta-service/internal/common"
	"eta-service/internal/eta"
	"eta-service/internal/geo"
)

var (
	// ErrInvalidDistance is returned before any request is made.
	ErrInvalidDistance = errors.New("valid distance is required")

	// ErrModelNotLoaded is returned by ModelInfo when the service runs
	// without a model.
	ErrModelNotLoaded = errors.New("model not loaded")
)

type Client struct {
	base  string
	rest  *resty.Client
	clock func() time.Time
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(common.DefaultClientTimeout)
	}
	r.SetHeader("Content-Type", "application/json")
	return &Client{
		base:  strings.TrimRight(base, "/"),
		rest:  r,
		clock: time.Now,
	}
}

// Params are the inputs of a prediction. Nil optional fields take the
// service defaults, with the hour taken from the local clock.
type Params struct {
	Distance     float64
	Weight       float64
	HourOfDay    *int
	TrafficLevel *int
	Weather      *int
}

// Estimate is a prediction, either from the service or computed locally.
type Estimate struct {
	ETAMinutes        int
	ETAFormatted      string
	Confidence        float64
	Method            string
	EstimatedDelivery time.Time
	Local             bool // computed without the service
}

type predictBody struct {
	Distance     float64 `json:"distance"`
	HourOfDay    int     `json:"hour_of_day"`
	TrafficLevel int     `json:"traffic_level"`
	Weather      *int    `json:"weather,omitempty"`
	Weight       float64 `json:"weight,omitempty"`
}

type predictResp struct {
	Success      bool    `json:"success"`
	Message      string  `json:"message"`
	ETAMinutes   int     `json:"eta_minutes"`
	ETAFormatted string  `json:"eta_formatted"`
	Confidence   float64 `json:"confidence"`
	Method       string  `json:"method"`
}

// PredictETA asks the service for an ETA and falls back to the local
// formula when the service is unreachable or does not succeed. The only
// error is ErrInvalidDistance.
func (c *Client) PredictETA(ctx context.Context, p Params) (Estimate, error) {
	if !(p.Distance > 0) {
		return Estimate{}, ErrInvalidDistance
	}

	now := c.clock()
	body := predictBody{
		Distance:     p.Distance,
		HourOfDay:    intOr(p.HourOfDay, now.Hour()),
		TrafficLevel: intOr(p.TrafficLevel, eta.DefaultTrafficLevel),
		Weather:      p.Weather,
		Weight:       p.Weight,
	}

	resp := &predictResp{}
	res, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(resp).
		SetError(resp).
		Post(c.base + "/predict/eta")

	switch {
	case err != nil:
		log.Warn().Err(err).Msg("eta service unavailable, using local fallback")
	case res.IsError() || !resp.Success:
		msg := resp.Message
		if msg == "" {
			msg = res.Status()
		}
		log.Warn().Int("status", res.StatusCode()).Str("message", msg).Msg("eta service returned error, using local fallback")
	default:
		return Estimate{
			ETAMinutes:        resp.ETAMinutes,
			ETAFormatted:      resp.ETAFormatted,
			Confidence:        resp.Confidence,
			Method:            resp.Method,
			EstimatedDelivery: now.Add(time.Duration(resp.ETAMinutes) * time.Minute),
		}, nil
	}

	minutes := eta.Estimate(body.Distance, body.HourOfDay, body.TrafficLevel)
	return Estimate{
		ETAMinutes:        minutes,
		ETAFormatted:      eta.Format(minutes),
		Confidence:        eta.FallbackConfidence,
		Method:            eta.MethodFallback,
		EstimatedDelivery: now.Add(time.Duration(minutes) * time.Minute),
		Local:             true,
	}, nil
}

// Health describes the service's health endpoint.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Timestamp   string `json:"timestamp"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	res, err := c.rest.R().SetContext(ctx).SetResult(&h).Get(c.base + "/health")
	if err != nil {
		return Health{}, fmt.Errorf("health: %w", err)
	}
	if res.IsError() {
		return Health{}, fmt.Errorf("health: %s", res.Status())
	}
	return h, nil
}

// ModelInfo describes the model the service loaded.
type ModelInfo struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message,omitempty"`
	Version   string   `json:"version"`
	Features  []string `json:"features"`
	ModelType string   `json:"model_type"`
}

func (c *Client) ModelInfo(ctx context.Context) (ModelInfo, error) {
	info := &ModelInfo{}
	res, err := c.rest.R().SetContext(ctx).SetResult(info).SetError(info).Get(c.base + "/model/info")
	if err != nil {
		return ModelInfo{}, fmt.Errorf("model info: %w", err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return ModelInfo{}, ErrModelNotLoaded
	}
	if res.IsError() || !info.Success {
		return ModelInfo{}, fmt.Errorf("model info: %s %s", res.Status(), info.Message)
	}
	return *info, nil
}

// Distance is the service's answer for a pickup and delivery pair.
type Distance struct {
	Success        bool    `json:"success"`
	Message        string  `json:"message,omitempty"`
	HaversineKm    float64 `json:"haversine_km"`
	RoadEstimateKm float64 `json:"road_estimate_km"`
}

func (c *Client) Distance(ctx context.Context, pickup, delivery geo.Point) (Distance, error) {
	d := &Distance{}
	res, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]geo.Point{"pickup": pickup, "delivery": delivery}).
		SetResult(d).
		SetError(d).
		Post(c.base + "/distance")
	if err != nil {
		return Distance{}, fmt.Errorf("distance: %w", err)
	}
	if res.IsError() || !d.Success {
		return Distance{}, fmt.Errorf("distance: %s %s", res.Status(), d.Message)
	}
	return *d, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
