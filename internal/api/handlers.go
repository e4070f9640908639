package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"eta-service/internal/eta"
	"eta-service/internal/geo"
	"eta-service/internal/storage"
)

const (
	maxBodyBytes = 1 << 20

	// isoTimestamp matches the timestamps existing clients parse.
	isoTimestamp = "2006-01-02T15:04:05.000000"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: s.modelLoaded(),
		Timestamp:   s.opts.Clock().Format(isoTimestamp),
	})
}

func (s *Server) handleModelInfo(c *gin.Context) {
	if !s.modelLoaded() {
		notFound(c, msgModelNotLoaded)
		return
	}
	c.JSON(http.StatusOK, ModelInfoResponse{
		Success:   true,
		Version:   s.opts.Model.Version(),
		Features:  s.opts.Model.Features(),
		ModelType: s.opts.Model.ModelType(),
	})
}

func (s *Server) handlePredictETA(c *gin.Context) {
	raw, err := decodeObject(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := s.opts.Predictor.Predict(c.Request.Context(), raw)
	if err != nil {
		var verr *eta.ValidationError
		if errors.As(err, &verr) {
			badRequest(c, verr.Error())
			return
		}
		log.Error().Err(err).Str("request_id", c.GetString(ctxRequestID)).Msg("prediction failed")
		internalError(c)
		return
	}

	s.record(c, result)

	c.JSON(http.StatusOK, PredictionResponse{
		Success:      true,
		ETAMinutes:   result.ETAMinutes,
		ETAFormatted: result.ETAFormatted,
		Confidence:   result.Confidence,
		Method:       result.Method,
		Input: PredictionInput{
			Distance:     result.Request.Distance,
			HourOfDay:    result.Request.HourOfDay,
			TrafficLevel: result.Request.TrafficLevel,
		},
	})
}

type distanceRequest struct {
	Pickup   *geo.Point `json:"pickup" binding:"required"`
	Delivery *geo.Point `json:"delivery" binding:"required"`
}

func (s *Server) handleDistance(c *gin.Context) {
	var req distanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Pickup and delivery coordinates are required")
		return
	}
	if err := req.Pickup.Validate(); err != nil {
		badRequest(c, "Invalid input: pickup: "+err.Error())
		return
	}
	if err := req.Delivery.Validate(); err != nil {
		badRequest(c, "Invalid input: delivery: "+err.Error())
		return
	}

	km := geo.Haversine(*req.Pickup, *req.Delivery)
	c.JSON(http.StatusOK, DistanceResponse{
		Success:        true,
		HaversineKm:    km,
		RoadEstimateKm: geo.RoadEstimate(km),
	})
}

func (s *Server) modelLoaded() bool {
	return s.opts.Model != nil && s.opts.Model.Loaded()
}

// record stores the prediction when a recorder is configured. Failures are
// logged and never change the response.
func (s *Server) record(c *gin.Context, result eta.PredictionResult) {
	if s.opts.Recorder == nil {
		return
	}
	_, err := s.opts.Recorder.RecordPrediction(storage.PredictionRecord{
		Timestamp:    s.opts.Clock().UTC(),
		Distance:     result.Request.Distance,
		HourOfDay:    result.Request.HourOfDay,
		TrafficLevel: result.Request.TrafficLevel,
		Weather:      result.Request.Weather,
		Weight:       result.Request.Weight,
		ETAMinutes:   result.ETAMinutes,
		Method:       result.Method,
		Confidence:   result.Confidence,
		ModelVersion: result.ModelVersion,
	})
	if err != nil {
		s.opts.Metrics.RecordErrorsInc()
		log.Warn().Err(err).Str("request_id", c.GetString(ctxRequestID)).Msg("failed to record prediction")
	}
}

// decodeObject reads the body as a JSON object. Numbers are kept as
// json.Number so integer fields are not forced through float64. An absent
// body, null, or an empty array decode to a nil map, which the predictor
// rejects as missing data.
func decodeObject(c *gin.Context) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, bodyError("could not read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, bodyError("malformed JSON")
	}
	if dec.More() {
		return nil, bodyError("trailing data after JSON value")
	}

	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case nil:
		return nil, nil
	case []any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return nil, bodyError("expected a JSON object")
}

func bodyError(reason string) *eta.ValidationError {
	return &eta.ValidationError{Field: "body", Message: "Invalid input: body: " + reason}
}
