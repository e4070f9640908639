package ml

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInterpreter writes a shell script that stands in for python. It
// ignores the -c program and answers with body.
func fakeInterpreter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "python3")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPythonModel_Predict(t *testing.T) {
	python := fakeInterpreter(t, `cat >/dev/null
echo '{"prediction": 42.5}'`)
	m := NewPythonModel(python, "model.pkl", 5*time.Second, nil)

	got, err := m.Predict(context.Background(), []float64{10, 18, 1, 2, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 42.5, got)
}

func TestPythonModel_ScriptError(t *testing.T) {
	python := fakeInterpreter(t, `cat >/dev/null
echo '{"error": "feature mismatch"}'
exit 1`)
	m := NewPythonModel(python, "model.pkl", 5*time.Second, nil)

	_, err := m.Predict(context.Background(), []float64{1})
	require.ErrorIs(t, err, ErrPrediction)
	assert.Contains(t, err.Error(), "feature mismatch")
}

func TestPythonModel_MissingPrediction(t *testing.T) {
	python := fakeInterpreter(t, `cat >/dev/null
echo '{}'`)
	m := NewPythonModel(python, "model.pkl", 5*time.Second, nil)

	_, err := m.Predict(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrPrediction)
}

func TestPythonModel_Timeout(t *testing.T) {
	python := fakeInterpreter(t, `exec sleep 5`)
	metrics := &MockMetrics{}
	m := NewPythonModel(python, "model.pkl", 100*time.Millisecond, metrics)

	start := time.Now()
	_, err := m.Predict(context.Background(), []float64{1})
	require.ErrorIs(t, err, ErrPrediction)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, 1, metrics.Timeouts())
}

func TestPythonModel_RejectsNonFiniteFeatures(t *testing.T) {
	m := NewPythonModel("/does/not/matter", "model.pkl", time.Second, nil)

	_, err := m.Predict(context.Background(), []float64{1, posInf()})
	assert.ErrorIs(t, err, ErrPrediction)
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
