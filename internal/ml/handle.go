package ml

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Handle is the process-wide, read-only reference to a loaded model. It is
// built once at startup and shared by every request. A nil *Handle means
// no model is loaded; all methods are nil-safe.
type Handle struct {
	model    Model
	manifest Manifest
	path     string
	loadedAt time.Time
	metrics  MetricsInterface
}

// LoadOptions configures LoadHandle.
type LoadOptions struct {
	Path       string
	PythonPath string
	Timeout    time.Duration
	CacheTTL   time.Duration
	CacheSize  int
	Metrics    MetricsInterface
}

// NewHandle wraps an already constructed model. The feature list is copied.
func NewHandle(model Model, manifest Manifest) *Handle {
	manifest.FeatureNames = append([]string(nil), manifest.FeatureNames...)
	if manifest.Version == "" {
		manifest.Version = "unknown"
	}
	return &Handle{
		model:    model,
		manifest: manifest,
		loadedAt: time.Now(),
		metrics:  noopMetrics{},
	}
}

// LoadHandle reads the artifact at opts.Path and builds the runtime it
// names. It returns an error wrapping ErrModelNotFound when there is no
// artifact, ErrInvalidArtifact for an unusable manifest and
// ErrRuntimeUnavailable when the runtime cannot serve it. In every error
// case the returned handle is nil and the caller should serve the fallback.
func LoadHandle(opts LoadOptions) (*Handle, error) {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	manifestPath, err := resolveManifestPath(opts.Path)
	if err != nil {
		return nil, err
	}

	manifest, err := loadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	model, err := buildRuntime(manifest, opts, metrics)
	if err != nil {
		return nil, err
	}

	if opts.CacheTTL > 0 && opts.CacheSize > 0 {
		model = NewCachedModel(model, opts.CacheTTL, opts.CacheSize, metrics)
	}

	h := NewHandle(model, *manifest)
	h.path = manifestPath
	h.metrics = metrics

	if info, err := os.Stat(manifestPath); err == nil {
		metrics.ModelAgeSet(time.Since(info.ModTime()).Seconds())
	}

	log.Info().
		Str("model_path", h.Path()).
		Time("loaded_at", h.LoadedAt()).
		Str("version", manifest.Version).
		Str("runtime", manifest.Runtime).
		Str("model_type", manifest.ModelType).
		Strs("features", manifest.FeatureNames).
		Msg("model loaded")

	return h, nil
}

func buildRuntime(m *Manifest, opts LoadOptions, metrics MetricsInterface) (Model, error) {
	switch m.Runtime {
	case RuntimeLinear:
		return NewLinearModel(m.FeatureNames, m.Weights, m.Intercept), nil

	case RuntimeRemote:
		return NewRemoteModel(m.Endpoint, opts.Timeout, metrics), nil

	case RuntimePython:
		if _, err := os.Stat(m.ModelFile); err != nil {
			return nil, fmt.Errorf("%w: model file %s: %v", ErrInvalidArtifact, m.ModelFile, err)
		}
		pythonPath := opts.PythonPath
		if pythonPath == "" {
			found, err := findPython()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
			}
			pythonPath = found
		}
		pm := NewPythonModel(pythonPath, m.ModelFile, opts.Timeout, metrics)
		if err := pm.healthCheck(len(m.FeatureNames)); err != nil {
			return nil, fmt.Errorf("%w: health check: %v", ErrRuntimeUnavailable, err)
		}
		return pm, nil
	}

	return nil, fmt.Errorf("%w: unknown runtime %q", ErrInvalidArtifact, m.Runtime)
}

// Loaded reports whether a model is available.
func (h *Handle) Loaded() bool {
	return h != nil && h.model != nil
}

// Predict invokes the underlying model.
func (h *Handle) Predict(ctx context.Context, features []float64) (float64, error) {
	if !h.Loaded() {
		return 0, fmt.Errorf("%w: no model loaded", ErrPrediction)
	}

	start := time.Now()
	defer func() {
		h.metrics.ModelLatencyObserve(time.Since(start).Seconds())
	}()

	return h.model.Predict(ctx, features)
}

// Features returns a copy of the feature schema.
func (h *Handle) Features() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.manifest.FeatureNames...)
}

func (h *Handle) Version() string {
	if h == nil {
		return ""
	}
	return h.manifest.Version
}

// ModelType returns the trained estimator's type name, falling back to the
// runtime name when the manifest does not carry one.
func (h *Handle) ModelType() string {
	if h == nil {
		return ""
	}
	if h.manifest.ModelType != "" {
		return h.manifest.ModelType
	}
	return h.manifest.Runtime
}

func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

func (h *Handle) LoadedAt() time.Time {
	if h == nil {
		return time.Time{}
	}
	return h.loadedAt
}
