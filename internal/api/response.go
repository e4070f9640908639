package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Messages shared with existing clients of the service.
const (
	msgEndpointNotFound = "Endpoint not found"
	msgMethodNotAllowed = "Method not allowed"
	msgInternalError    = "Internal server error"
	msgModelNotLoaded   = "Model not loaded"
	msgRateLimited      = "Rate limit exceeded. Please try again later."
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Timestamp   string `json:"timestamp"`
}

// ModelInfoResponse is returned by GET /model/info when a model is loaded.
type ModelInfoResponse struct {
	Success   bool     `json:"success"`
	Version   string   `json:"version"`
	Features  []string `json:"features"`
	ModelType string   `json:"model_type"`
}

// PredictionInput echoes the inputs a prediction was computed from.
type PredictionInput struct {
	Distance     float64 `json:"distance"`
	HourOfDay    int     `json:"hour_of_day"`
	TrafficLevel int     `json:"traffic_level"`
}

// PredictionResponse is returned by POST /predict/eta.
type PredictionResponse struct {
	Success      bool            `json:"success"`
	ETAMinutes   int             `json:"eta_minutes"`
	ETAFormatted string          `json:"eta_formatted"`
	Confidence   float64         `json:"confidence"`
	Method       string          `json:"method"`
	Input        PredictionInput `json:"input"`
}

// DistanceResponse is returned by POST /distance.
type DistanceResponse struct {
	Success        bool    `json:"success"`
	HaversineKm    float64 `json:"haversine_km"`
	RoadEstimateKm float64 `json:"road_estimate_km"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Message: message})
}

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, message)
}

func notFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, message)
}

func internalError(c *gin.Context) {
	fail(c, http.StatusInternalServerError, msgInternalError)
}
