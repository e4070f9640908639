package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eta-service/internal/eta"
	"eta-service/internal/ml"
	"eta-service/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var testNow = time.Date(2024, 3, 14, 14, 30, 15, 123456000, time.UTC)

func testClock() time.Time { return testNow }

var testSchema = []string{"distance", "hour_of_day", "is_rush_hour", "traffic_encoded", "weather_encoded", "vehicle_encoded"}

func newHandle(fn ml.ModelFunc) *ml.Handle {
	return ml.NewHandle(fn, ml.Manifest{Version: "1.0.0", FeatureNames: testSchema, ModelType: "RandomForestRegressor"})
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []storage.PredictionRecord
	err     error
}

func (r *fakeRecorder) RecordPrediction(record storage.PredictionRecord) (storage.PredictionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return record, r.err
	}
	r.records = append(r.records, record)
	return record, nil
}

type fakeMetrics struct {
	mu           sync.Mutex
	routes       map[string]int
	recordErrors int
}

func (m *fakeMetrics) HTTPRequestObserve(route string, status int, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.routes == nil {
		m.routes = map[string]int{}
	}
	m.routes[route]++
}

func (m *fakeMetrics) RecordErrorsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrors++
}

type predictorFunc func(ctx context.Context, raw map[string]any) (eta.PredictionResult, error)

func (f predictorFunc) Predict(ctx context.Context, raw map[string]any) (eta.PredictionResult, error) {
	return f(ctx, raw)
}

func newTestServer(t *testing.T, handle *ml.Handle, mutate ...func(*Options)) *Server {
	t.Helper()
	opts := Options{
		Predictor: eta.NewPredictor(handle, eta.WithClock(testClock)),
		Model:     handle,
		Clock:     testClock,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := NewServer(opts)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNewServer_RequiresPredictor(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	t.Run("without model", func(t *testing.T) {
		w := do(t, newTestServer(t, nil), http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[HealthResponse](t, w)
		assert.Equal(t, "healthy", resp.Status)
		assert.False(t, resp.ModelLoaded)
		assert.Equal(t, "2024-03-14T14:30:15.123456", resp.Timestamp)
	})

	t.Run("with model", func(t *testing.T) {
		handle := newHandle(func(context.Context, []float64) (float64, error) { return 30, nil })
		w := do(t, newTestServer(t, handle), http.MethodGet, "/health", "")

		resp := decode[HealthResponse](t, w)
		assert.True(t, resp.ModelLoaded)
	})
}

func TestModelInfo(t *testing.T) {
	t.Run("not loaded", func(t *testing.T) {
		w := do(t, newTestServer(t, nil), http.MethodGet, "/model/info", "")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Model not loaded"}`, w.Body.String())
	})

	t.Run("loaded", func(t *testing.T) {
		handle := newHandle(func(context.Context, []float64) (float64, error) { return 30, nil })
		w := do(t, newTestServer(t, handle), http.MethodGet, "/model/info", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[ModelInfoResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "1.0.0", resp.Version)
		assert.Equal(t, testSchema, resp.Features)
		assert.Equal(t, "RandomForestRegressor", resp.ModelType)
	})
}

func TestPredictETA_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty object", `{}`, "No data provided"},
		{"no body", ``, "No data provided"},
		{"null body", `null`, "No data provided"},
		{"missing distance", `{"hour_of_day": 9}`, "Distance is required"},
		{"negative distance", `{"distance": -5}`, "Distance must be positive"},
		{"zero distance", `{"distance": 0}`, "Distance must be positive"},
		{"non numeric distance", `{"distance": "far"}`, `Invalid input: distance: could not convert "far" to a number`},
		{"bad hour", `{"distance": 5, "hour_of_day": "noon"}`, `Invalid input: hour_of_day: could not convert "noon" to an integer`},
		{"malformed json", `{"distance": `, "Invalid input: body: malformed JSON"},
		{"array body", `[1, 2]`, "Invalid input: body: expected a JSON object"},
		{"scalar body", `42`, "Invalid input: body: expected a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(t, nil), http.MethodPost, "/predict/eta", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			resp := decode[ErrorResponse](t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestPredictETA_FallbackWithoutModel(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodPost, "/predict/eta", `{"distance": 15.5, "hour_of_day": 14}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[PredictionResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "fallback_formula", resp.Method)
	assert.Equal(t, 0.6, resp.Confidence)
	assert.GreaterOrEqual(t, resp.ETAMinutes, 15)
	assert.Equal(t, 37, resp.ETAMinutes)
	assert.Equal(t, "37m", resp.ETAFormatted)
	assert.Equal(t, PredictionInput{Distance: 15.5, HourOfDay: 14, TrafficLevel: 2}, resp.Input)
}

func TestPredictETA_ModelPath(t *testing.T) {
	handle := newHandle(func(_ context.Context, features []float64) (float64, error) {
		return features[0] * 6, nil
	})
	w := do(t, newTestServer(t, handle), http.MethodPost, "/predict/eta", `{"distance": "20", "traffic_level": 3}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[PredictionResponse](t, w)
	assert.Equal(t, "ml_prediction", resp.Method)
	assert.Equal(t, 0.85, resp.Confidence)
	assert.Equal(t, 120, resp.ETAMinutes)
	assert.Equal(t, "2h", resp.ETAFormatted)
	assert.Equal(t, PredictionInput{Distance: 20, HourOfDay: 14, TrafficLevel: 3}, resp.Input)
}

func TestPredictETA_ModelFailuresNeverSurface(t *testing.T) {
	handles := map[string]*ml.Handle{
		"error": newHandle(func(context.Context, []float64) (float64, error) {
			return 0, errors.New("model exploded")
		}),
		"panic": newHandle(func(context.Context, []float64) (float64, error) {
			panic("corrupt tree")
		}),
	}

	for name, handle := range handles {
		t.Run(name, func(t *testing.T) {
			for _, body := range []string{`{"distance": 1}`, `{"distance": 15.5, "hour_of_day": 18}`, `{"distance": 300, "traffic_level": 4}`} {
				w := do(t, newTestServer(t, handle), http.MethodPost, "/predict/eta", body)
				require.Equal(t, http.StatusOK, w.Code, body)

				resp := decode[PredictionResponse](t, w)
				assert.Equal(t, "fallback_formula", resp.Method)
				assert.Equal(t, 0.6, resp.Confidence)
			}
		})
	}
}

func TestPredictETA_UnexpectedErrorIs500(t *testing.T) {
	s := newTestServer(t, nil, func(o *Options) {
		o.Predictor = predictorFunc(func(context.Context, map[string]any) (eta.PredictionResult, error) {
			return eta.PredictionResult{}, errors.New("disk on fire")
		})
	})

	w := do(t, s, http.MethodPost, "/predict/eta", `{"distance": 3}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Internal server error"}`, w.Body.String())
}

func TestPanicRecovery(t *testing.T) {
	s := newTestServer(t, nil, func(o *Options) {
		o.Predictor = predictorFunc(func(context.Context, map[string]any) (eta.PredictionResult, error) {
			panic("handler bug")
		})
	})

	w := do(t, s, http.MethodPost, "/predict/eta", `{"distance": 3}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Internal server error"}`, w.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/does/not/exist", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Endpoint not found"}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/predict/eta", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPredictETA_RecordsPredictions(t *testing.T) {
	recorder := &fakeRecorder{}
	handle := newHandle(func(context.Context, []float64) (float64, error) { return 42, nil })
	s := newTestServer(t, handle, func(o *Options) { o.Recorder = recorder })

	w := do(t, s, http.MethodPost, "/predict/eta", `{"distance": 12, "weather": 3, "weight": 4.5}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, recorder.records, 1)
	rec := recorder.records[0]
	assert.Equal(t, 12.0, rec.Distance)
	assert.Equal(t, 3, rec.Weather)
	assert.Equal(t, 4.5, rec.Weight)
	assert.Equal(t, 42, rec.ETAMinutes)
	assert.Equal(t, "ml_prediction", rec.Method)
	assert.Equal(t, "1.0.0", rec.ModelVersion)
	assert.True(t, testNow.Equal(rec.Timestamp))

	// validation failures are not recorded
	do(t, s, http.MethodPost, "/predict/eta", `{}`)
	assert.Len(t, recorder.records, 1)
}

func TestPredictETA_RecorderFailureIsIgnored(t *testing.T) {
	metrics := &fakeMetrics{}
	s := newTestServer(t, nil, func(o *Options) {
		o.Recorder = &fakeRecorder{err: errors.New("database is full")}
		o.Metrics = metrics
	})

	w := do(t, s, http.MethodPost, "/predict/eta", `{"distance": 12}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, metrics.recordErrors)
	assert.Equal(t, 1, metrics.routes["/predict/eta"])
}

func TestDistance(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/distance", `{"pickup":{"lat":0,"lng":0},"delivery":{"lat":1,"lng":0}}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[DistanceResponse](t, w)
	assert.True(t, resp.Success)
	assert.InDelta(t, 111.195, resp.HaversineKm, 0.01)
	assert.InDelta(t, resp.HaversineKm*1.3, resp.RoadEstimateKm, 1e-9)

	for _, body := range []string{
		`{}`,
		`{"pickup":{"lat":0,"lng":0}}`,
		`{"pickup":{"lat":95,"lng":0},"delivery":{"lat":1,"lng":0}}`,
		`not json`,
	} {
		w := do(t, s, http.MethodPost, "/distance", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.False(t, decode[ErrorResponse](t, w).Success)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, func(o *Options) {
		o.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("eta_predictions_total 0\n"))
		})
	})

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "eta_predictions_total"))

	w = do(t, newTestServer(t, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeAndShutdown(t *testing.T) {
	s := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestShutdownBeforeListen(t *testing.T) {
	s := newTestServer(t, nil, func(o *Options) { o.Addr = "127.0.0.1:0" })

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, s.ListenAndServe())
}

func TestNewServer_RejectsBadTrustedProxy(t *testing.T) {
	_, err := NewServer(Options{
		Predictor:      eta.NewPredictor(nil),
		TrustedProxies: []string{"not-a-proxy"},
	})
	assert.Error(t, err)
}
