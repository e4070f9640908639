package eta

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Request field names as they appear on the wire.
const (
	FieldDistance     = "distance"
	FieldHourOfDay    = "hour_of_day"
	FieldTrafficLevel = "traffic_level"
	FieldWeather      = "weather"
	FieldWeight       = "weight"
)

// Defaults for optional request fields.
const (
	DefaultTrafficLevel = 2
	DefaultWeather      = 1
	DefaultWeight       = 1.0
)

// PredictionRequest is a validated, default-filled prediction input.
type PredictionRequest struct {
	Distance     float64 // haversine km, > 0
	HourOfDay    int
	TrafficLevel int
	Weather      int
	Weight       float64 // kg, accepted but unused by either path
}

// ValidationError reports a request the service cannot answer. Field is
// empty when the body itself is missing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalidInput(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("Invalid input: %s: %s", field, fmt.Sprintf(format, args...)),
	}
}

// ParseRequest validates a decoded JSON object and fills defaults. The
// hour defaults to now's hour. Numbers may arrive as JSON numbers or
// numeric strings; integer fields truncate fractional JSON numbers. A JSON
// null is treated like an absent field.
func ParseRequest(raw map[string]any, now time.Time) (PredictionRequest, error) {
	if len(raw) == 0 {
		return PredictionRequest{}, &ValidationError{Message: "No data provided"}
	}

	distanceRaw, ok := raw[FieldDistance]
	if !ok || distanceRaw == nil {
		return PredictionRequest{}, &ValidationError{Field: FieldDistance, Message: "Distance is required"}
	}
	distance, err := toFloat(FieldDistance, distanceRaw)
	if err != nil {
		return PredictionRequest{}, err
	}
	if distance <= 0 {
		return PredictionRequest{}, &ValidationError{Field: FieldDistance, Message: "Distance must be positive"}
	}

	req := PredictionRequest{Distance: distance}

	if req.HourOfDay, err = optionalInt(raw, FieldHourOfDay, now.Hour()); err != nil {
		return PredictionRequest{}, err
	}
	if req.TrafficLevel, err = optionalInt(raw, FieldTrafficLevel, DefaultTrafficLevel); err != nil {
		return PredictionRequest{}, err
	}
	if req.Weather, err = optionalInt(raw, FieldWeather, DefaultWeather); err != nil {
		return PredictionRequest{}, err
	}
	if v, ok := raw[FieldWeight]; ok && v != nil {
		if req.Weight, err = toFloat(FieldWeight, v); err != nil {
			return PredictionRequest{}, err
		}
	} else {
		req.Weight = DefaultWeight
	}

	return req, nil
}

func optionalInt(raw map[string]any, field string, def int) (int, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return def, nil
	}
	return toInt(field, v)
}

func toFloat(field string, v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, invalidInput(field, "could not convert %q to a number", t.String())
		}
		f = parsed
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, invalidInput(field, "could not convert %q to a number", t)
		}
		f = parsed
	default:
		return 0, invalidInput(field, "expected a number, got %s", describe(v))
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidInput(field, "must be a finite number")
	}
	return f, nil
}

func toInt(field string, v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(t.String()); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, invalidInput(field, "could not convert %q to an integer", t.String())
		}
		return truncate(field, f)
	case float64:
		return truncate(field, t)
	case float32:
		return truncate(field, float64(t))
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case string:
		// numeric strings must be integral, "14.5" is rejected
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, invalidInput(field, "could not convert %q to an integer", t)
		}
		return i, nil
	default:
		return 0, invalidInput(field, "expected an integer, got %s", describe(v))
	}
}

func truncate(field string, f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, invalidInput(field, "%v is out of range", f)
	}
	return int(f), nil
}

func describe(v any) string {
	switch v.(type) {
	case bool:
		return "a boolean"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
