package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// PythonModel evaluates a joblib-serialized scikit-learn estimator by
// piping each feature vector to a short-lived Python process.
type PythonModel struct {
	pythonPath string
	modelFile  string
	timeout    time.Duration
	metrics    MetricsInterface
}

type inferenceRequest struct {
	Features []float64 `json:"features"`
}

type inferenceResponse struct {
	Prediction *float64 `json:"prediction"`
	Error      string   `json:"error,omitempty"`
}

func NewPythonModel(pythonPath, modelFile string, timeout time.Duration, metrics MetricsInterface) *PythonModel {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &PythonModel{
		pythonPath: pythonPath,
		modelFile:  modelFile,
		timeout:    timeout,
		metrics:    metrics,
	}
}

func (p *PythonModel) Predict(ctx context.Context, features []float64) (float64, error) {
	for i, f := range features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: feature %d is not finite", ErrPrediction, i)
		}
	}

	reqJSON, err := json.Marshal(inferenceRequest{Features: features})
	if err != nil {
		return 0, fmt.Errorf("%w: marshal request: %v", ErrPrediction, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.pythonPath, "-c", inferenceScript, p.modelFile)
	cmd.Stdin = bytes.NewReader(reqJSON)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.metrics.ModelTimeoutsInc()
			return 0, fmt.Errorf("%w: timeout after %v", ErrPrediction, p.timeout)
		}

		log.Debug().
			Err(err).
			Str("python_path", p.pythonPath).
			Str("model_file", p.modelFile).
			Str("stderr", stderr.String()).
			Str("stdout", stdout.String()).
			Msg("python inference execution failed")

		// the script reports its own failures as JSON before exiting non-zero
		var resp inferenceResponse
		if jsonErr := json.Unmarshal(stdout.Bytes(), &resp); jsonErr == nil && resp.Error != "" {
			return 0, fmt.Errorf("%w: python: %s", ErrPrediction, resp.Error)
		}
		return 0, fmt.Errorf("%w: python inference: %v: %s", ErrPrediction, err, strings.TrimSpace(stderr.String()))
	}

	var resp inferenceResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return 0, fmt.Errorf("%w: parse response: %v, stdout: %s", ErrPrediction, err, stdout.String())
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: python: %s", ErrPrediction, resp.Error)
	}
	if resp.Prediction == nil {
		return 0, fmt.Errorf("%w: response carries no prediction", ErrPrediction)
	}

	return *resp.Prediction, nil
}

// healthCheck runs one inference on a zero vector so that a broken
// interpreter or model file is detected at load time.
func (p *PythonModel) healthCheck(featureCount int) error {
	_, err := p.Predict(context.Background(), make([]float64, featureCount))
	return err
}

// findPython prefers an active virtualenv, then a project venv next to the
// executable, then whatever python3 is on PATH. Candidates must be able to
// import joblib.
func findPython() (string, error) {
	var candidates []string

	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates = append(candidates,
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
		)
	}

	if execPath, err := os.Executable(); err == nil {
		for _, root := range []string{filepath.Dir(execPath), filepath.Dir(filepath.Dir(execPath))} {
			candidates = append(candidates,
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
			)
		}
	}

	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			candidates = append(candidates, path)
		}
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		cmd := exec.Command(candidate, "-c", "import joblib, numpy")
		if err := cmd.Run(); err == nil {
			log.Info().Str("python_path", candidate).Msg("using python for model inference")
			return candidate, nil
		}
	}

	return "", errors.New("no python 3 interpreter with joblib and numpy found")
}

const inferenceScript = `
import json
import sys

try:
    import joblib
    import numpy as np
except ImportError as e:
    print(json.dumps({"error": "missing dependency: %s" % e}))
    sys.exit(1)

try:
    bundle = joblib.load(sys.argv[1])
    model = bundle["model"] if isinstance(bundle, dict) else bundle
    request = json.load(sys.stdin)
    features = np.array([request["features"]], dtype=float)
    prediction = model.predict(features)[0]
    print(json.dumps({"prediction": float(prediction)}))
except Exception as e:
    print(json.dumps({"error": str(e)}))
    sys.exit(1)
`
