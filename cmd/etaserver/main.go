package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eta-service/internal/api"
	"eta-service/internal/cfg"
	"eta-service/internal/eta"
	"eta-service/internal/metrics"
	"eta-service/internal/ml"
	"eta-service/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run returns after the server stops so deferred cleanup happens before
// the process exits.
func run() error {
	c, err := cfg.Load()
	if err != nil {
		log.Error().Err(err).Msg("config load failed")
		return err
	}
	setupLogging(c)

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	// The model is loaded before the listener opens and never replaced.
	handle := loadModel(c, mw)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	predictor := eta.NewPredictor(handle, eta.WithMetrics(mw))

	opts := api.Options{
		Addr:           fmt.Sprintf(":%d", c.Port),
		Predictor:      predictor,
		Model:          handle,
		Metrics:        mw,
		MetricsHandler: promhttp.Handler(),
		CORSOrigins:    c.CORSOrigins,
		RateLimitRPS:   c.RateLimitRPS,
		RateLimitBurst: c.RateLimitBurst,
		TrustedProxies: c.TrustedProxies,
	}
	// a nil *storage.Store must not become a non-nil interface
	if store != nil {
		opts.Recorder = store
	}

	gin.SetMode(gin.ReleaseMode)
	server, err := api.NewServer(opts)
	if err != nil {
		log.Error().Err(err).Msg("server setup failed")
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	err = waitForShutdown(server, c, errCh)
	log.Info().
		Float64("fallback_rate", m.FallbackRate(prometheus.DefaultGatherer)).
		Msg("prediction summary")
	return err
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// loadModel returns nil when no usable model exists; the service then
// answers every request with the fallback formula.
func loadModel(c cfg.Settings, mw *metrics.MetricsWrapper) *ml.Handle {
	opts := ml.LoadOptions{
		Path:       c.ModelPath,
		PythonPath: c.PythonPath,
		Timeout:    c.PredictTimeout,
		Metrics:    mw,
	}
	if c.CacheEnabled() {
		opts.CacheTTL = c.CacheTTL
		opts.CacheSize = c.CacheSize
	}

	handle, err := ml.LoadHandle(opts)
	switch {
	case err == nil:
		return handle
	case errors.Is(err, ml.ErrModelNotFound):
		log.Info().Str("model_path", c.ModelPath).Msg("no model artifact found, using fallback formula")
	default:
		log.Error().Err(err).Str("model_path", c.ModelPath).Msg("model load failed, using fallback formula")
	}
	return nil
}

// initializeStorage opens the prediction recorder if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if !c.RecorderEnabled() {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without recording")
		return nil
	}
	log.Info().Str("data_path", c.DataPath).Msg("recording predictions")
	return store
}

// waitForShutdown blocks until a signal arrives or the server fails. It
// returns the listener error, if any.
func waitForShutdown(server *api.Server, c cfg.Settings, errCh <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
		return err
	}

	log.Info().Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return nil
	}
	log.Info().Msg("server stopped")
	return <-errCh
}
