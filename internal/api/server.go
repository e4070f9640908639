// Package api exposes the ETA service over HTTP using gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"eta-service/internal/eta"
	"eta-service/internal/storage"
)

// Predictor answers prediction requests.
type Predictor interface {
	Predict(ctx context.Context, raw map[string]any) (eta.PredictionResult, error)
}

// ModelInfo describes the loaded model. *ml.Handle implements it, including
// as a nil pointer.
type ModelInfo interface {
	Loaded() bool
	Version() string
	Features() []string
	ModelType() string
}

// Recorder persists served predictions.
type Recorder interface {
	RecordPrediction(record storage.PredictionRecord) (storage.PredictionRecord, error)
}

// MetricsInterface defines the metrics methods needed by the HTTP layer
type MetricsInterface interface {
	HTTPRequestObserve(route string, status int, seconds float64)
	RecordErrorsInc()
}

type noopMetrics struct{}

func (noopMetrics) HTTPRequestObserve(string, int, float64) {}
func (noopMetrics) RecordErrorsInc()                        {}

// Options configures a Server. Predictor is required.
type Options struct {
	Addr           string
	Predictor      Predictor
	Model          ModelInfo
	Recorder       Recorder // optional
	Metrics        MetricsInterface
	MetricsHandler http.Handler // served on /metrics when set
	Clock          func() time.Time
	CORSOrigins    []string
	RateLimitRPS   float64 // 0 disables rate limiting
	RateLimitBurst int
	TrustedProxies []string // nil trusts no proxy, so the client IP is the peer address
}

// Server is the HTTP front of the service.
type Server struct {
	opts   Options
	engine *gin.Engine
	server *http.Server
}

func NewServer(opts Options) (*Server, error) {
	if opts.Predictor == nil {
		return nil, errors.New("predictor is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{opts: opts}
	engine, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.engine = engine
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(s.opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	r.Use(
		RequestID(),
		AccessLog(s.opts.Metrics),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			log.Error().
				Interface("panic", recovered).
				Str("path", c.Request.URL.Path).
				Str("request_id", c.GetString(ctxRequestID)).
				Msg("recovered from panic")
			internalError(c)
		}),
		CORS(s.opts.CORSOrigins),
	)
	if s.opts.RateLimitRPS > 0 {
		r.Use(RateLimit(s.opts.RateLimitRPS, s.opts.RateLimitBurst))
	}

	r.GET("/health", s.handleHealth)
	r.GET("/model/info", s.handleModelInfo)
	r.POST("/predict/eta", s.handlePredictETA)
	r.POST("/distance", s.handleDistance)
	if s.opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(s.opts.MetricsHandler))
	}

	r.NoRoute(func(c *gin.Context) {
		notFound(c, msgEndpointNotFound)
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})

	return r, nil
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on the configured address until Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting eta server")
	return s.serveResult(s.server.ListenAndServe())
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("starting eta server")
	return s.serveResult(s.server.Serve(ln))
}

func (s *Server) serveResult(err error) error {
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests. Called before the server
// starts, it makes a later ListenAndServe return immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
