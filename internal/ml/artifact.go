package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Supported runtimes
const (
	RuntimePython = "python"
	RuntimeLinear = "linear"
	RuntimeRemote = "remote"
)

// Manifest describes a trained model artifact. It is produced next to the
// serialized model by the training pipeline.
type Manifest struct {
	Version      string             `json:"version"`
	FeatureNames []string           `json:"feature_names"`
	ModelType    string             `json:"model_type"`
	Runtime      string             `json:"runtime"`
	ModelFile    string             `json:"model_file,omitempty"`
	Weights      map[string]float64 `json:"weights,omitempty"`
	Intercept    float64            `json:"intercept,omitempty"`
	Endpoint     string             `json:"endpoint,omitempty"`
	TrainedAt    time.Time          `json:"trained_at,omitempty"`
}

// resolveManifestPath accepts either a manifest file or a directory. For a
// directory the newest eta_model*.json (by name, which embeds the training
// timestamp) wins.
func resolveManifestPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return "", fmt.Errorf("stat model path %s: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	matches, err := filepath.Glob(filepath.Join(path, "eta_model*.json"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("%w: no eta_model*.json in %s", ErrModelNotFound, path)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func loadManifest(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var m Manifest
	if err := json.NewDecoder(file).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidArtifact, path, err)
	}

	if m.Runtime == "" {
		m.Runtime = inferRuntime(&m)
	}
	if m.Version == "" {
		m.Version = "unknown"
	}
	if m.ModelFile != "" && !filepath.IsAbs(m.ModelFile) {
		m.ModelFile = filepath.Join(filepath.Dir(path), m.ModelFile)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	return &m, nil
}

func inferRuntime(m *Manifest) string {
	switch {
	case m.Endpoint != "":
		return RuntimeRemote
	case len(m.Weights) > 0:
		return RuntimeLinear
	default:
		return RuntimePython
	}
}

func (m *Manifest) validate() error {
	if len(m.FeatureNames) == 0 {
		return errors.New("feature_names is empty")
	}
	for i, name := range m.FeatureNames {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("feature_names[%d] is blank", i)
		}
	}

	switch m.Runtime {
	case RuntimePython:
		if m.ModelFile == "" {
			return errors.New("python runtime requires model_file")
		}
	case RuntimeLinear:
		if len(m.Weights) == 0 {
			return errors.New("linear runtime requires weights")
		}
	case RuntimeRemote:
		if !strings.HasPrefix(m.Endpoint, "http://") && !strings.HasPrefix(m.Endpoint, "https://") {
			return fmt.Errorf("remote runtime requires an http(s) endpoint, got %q", m.Endpoint)
		}
	default:
		return fmt.Errorf("unknown runtime %q", m.Runtime)
	}
	return nil
}
