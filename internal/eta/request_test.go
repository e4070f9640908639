package eta

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 14, 16, 45, 0, 0, time.UTC)

func TestParseRequest_Defaults(t *testing.T) {
	req, err := ParseRequest(map[string]any{"distance": json.Number("12.5")}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, PredictionRequest{
		Distance:     12.5,
		HourOfDay:    16,
		TrafficLevel: DefaultTrafficLevel,
		Weather:      DefaultWeather,
		Weight:       DefaultWeight,
	}, req)
}

func TestParseRequest_Coercion(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want PredictionRequest
	}{
		{
			name: "json numbers",
			raw: map[string]any{
				"distance": json.Number("8"), "hour_of_day": json.Number("9"),
				"traffic_level": json.Number("3"), "weather": json.Number("2"), "weight": json.Number("4.2"),
			},
			want: PredictionRequest{Distance: 8, HourOfDay: 9, TrafficLevel: 3, Weather: 2, Weight: 4.2},
		},
		{
			name: "numeric strings",
			raw:  map[string]any{"distance": " 7.25 ", "hour_of_day": "21", "traffic_level": "4", "weight": "2"},
			want: PredictionRequest{Distance: 7.25, HourOfDay: 21, TrafficLevel: 4, Weather: 1, Weight: 2},
		},
		{
			name: "fractional numbers truncate for integer fields",
			raw:  map[string]any{"distance": 3.0, "hour_of_day": json.Number("14.9"), "traffic_level": 2.7},
			want: PredictionRequest{Distance: 3, HourOfDay: 14, TrafficLevel: 2, Weather: 1, Weight: 1},
		},
		{
			name: "nulls fall back to defaults",
			raw:  map[string]any{"distance": 5, "hour_of_day": nil, "traffic_level": nil, "weather": nil, "weight": nil},
			want: PredictionRequest{Distance: 5, HourOfDay: 16, TrafficLevel: 2, Weather: 1, Weight: 1},
		},
		{
			name: "out of table levels are accepted",
			raw:  map[string]any{"distance": 5, "hour_of_day": 30, "traffic_level": 9},
			want: PredictionRequest{Distance: 5, HourOfDay: 30, TrafficLevel: 9, Weather: 1, Weight: 1},
		},
		{
			name: "unknown fields are ignored",
			raw:  map[string]any{"distance": 5, "vehicle": "bike"},
			want: PredictionRequest{Distance: 5, HourOfDay: 16, TrafficLevel: 2, Weather: 1, Weight: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.raw, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRequest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]any
		wantField string
		wantMsg   string
	}{
		{name: "nil body", raw: nil, wantMsg: "No data provided"},
		{name: "empty body", raw: map[string]any{}, wantMsg: "No data provided"},
		{name: "missing distance", raw: map[string]any{"hour_of_day": 9}, wantField: "distance", wantMsg: "Distance is required"},
		{name: "null distance", raw: map[string]any{"distance": nil}, wantField: "distance", wantMsg: "Distance is required"},
		{name: "negative distance", raw: map[string]any{"distance": json.Number("-5")}, wantField: "distance", wantMsg: "Distance must be positive"},
		{name: "zero distance", raw: map[string]any{"distance": 0.0}, wantField: "distance", wantMsg: "Distance must be positive"},
		{name: "non numeric distance", raw: map[string]any{"distance": "far"}, wantField: "distance", wantMsg: `Invalid input: distance: could not convert "far" to a number`},
		{name: "boolean distance", raw: map[string]any{"distance": true}, wantField: "distance", wantMsg: "Invalid input: distance: expected a number, got a boolean"},
		{name: "nan distance", raw: map[string]any{"distance": "NaN"}, wantField: "distance", wantMsg: "Invalid input: distance: must be a finite number"},
		{name: "fractional hour string", raw: map[string]any{"distance": 5, "hour_of_day": "14.5"}, wantField: "hour_of_day", wantMsg: `Invalid input: hour_of_day: could not convert "14.5" to an integer`},
		{name: "object traffic", raw: map[string]any{"distance": 5, "traffic_level": map[string]any{}}, wantField: "traffic_level", wantMsg: "Invalid input: traffic_level: expected an integer, got an object"},
		{name: "array weather", raw: map[string]any{"distance": 5, "weather": []any{1}}, wantField: "weather", wantMsg: "Invalid input: weather: expected an integer, got an array"},
		{name: "bad weight", raw: map[string]any{"distance": 5, "weight": "heavy"}, wantField: "weight", wantMsg: `Invalid input: weight: could not convert "heavy" to a number`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.raw, fixedNow)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, tt.wantMsg, verr.Error())
		})
	}
}
