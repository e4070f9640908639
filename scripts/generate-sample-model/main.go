// Command generate-sample-model writes a linear model artifact fitted to
// synthetic deliveries, so the service can run the model path without a
// trained scikit-learn bundle. With -data it also seeds the prediction
// store with the synthetic samples.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"eta-service/internal/common"
	"eta-service/internal/eta"
	"eta-service/internal/ml"
	"eta-service/internal/storage"
)

var featureNames = []string{
	eta.FeatureDistance,
	eta.FeatureHourOfDay,
	eta.FeatureRushHour,
	eta.FeatureTraffic,
	eta.FeatureWeather,
	eta.FeatureVehicle,
}

func main() {
	var (
		outDir   = flag.String("out", common.DefaultModelPath, "directory for the model manifest")
		dataPath = flag.String("data", "", "optional data directory to seed with sample predictions")
		samples  = flag.Int("samples", 5000, "number of synthetic deliveries")
		seed     = flag.Uint64("seed", 42, "random seed")
		noise    = flag.Float64("noise", 3, "standard deviation of delivery noise in minutes")
	)
	flag.Parse()

	rng := rand.New(rand.NewPCG(*seed, *seed))
	reqs, y := synthesize(rng, *samples, *noise)

	weights, intercept, err := fit(reqs, y)
	if err != nil {
		log.Fatalf("Failed to fit model: %v", err)
	}

	manifest := ml.Manifest{
		Version:      time.Now().UTC().Format("20060102.150405"),
		FeatureNames: featureNames,
		ModelType:    "LinearRegression",
		Runtime:      ml.RuntimeLinear,
		Weights:      weights,
		Intercept:    intercept,
		TrainedAt:    time.Now().UTC(),
	}

	path, err := writeManifest(*outDir, manifest)
	if err != nil {
		log.Fatalf("Failed to write manifest: %v", err)
	}
	fmt.Printf("✓ Wrote %s (%d samples)\n", path, *samples)

	if *dataPath != "" {
		if err := seedStore(*dataPath, reqs, y); err != nil {
			log.Fatalf("Failed to seed store: %v", err)
		}
		fmt.Printf("✓ Seeded %s with %d records\n", *dataPath, len(reqs))
	}
}

// writeManifest stores the manifest under a versioned name that the service
// picks up when MODEL_PATH points at the directory.
func writeManifest(dir string, manifest ml.Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("eta_model_%s.json", manifest.Version))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// synthesize draws deliveries whose duration follows the fallback formula
// plus weather delay and noise.
func synthesize(rng *rand.Rand, n int, noise float64) ([]eta.PredictionRequest, []float64) {
	reqs := make([]eta.PredictionRequest, n)
	y := make([]float64, n)
	for i := range reqs {
		req := eta.PredictionRequest{
			Distance:     0.5 + rng.Float64()*40,
			HourOfDay:    rng.IntN(24),
			TrafficLevel: 1 + rng.IntN(4),
			Weather:      1 + rng.IntN(4),
			Weight:       eta.DefaultWeight,
		}
		minutes := float64(eta.Estimate(req.Distance, req.HourOfDay, req.TrafficLevel))
		minutes += float64(req.Weather-1) * 4
		minutes += rng.NormFloat64() * noise

		reqs[i] = req
		y[i] = minutes
	}
	return reqs, y
}

// fit solves the least squares problem for intercept and one weight per
// feature.
func fit(reqs []eta.PredictionRequest, y []float64) (map[string]float64, float64, error) {
	// vehicle_encoded is constant and collinear with the intercept, so it is
	// left out of the solve and gets zero weight
	var solved []string
	for _, name := range featureNames {
		if name != eta.FeatureVehicle {
			solved = append(solved, name)
		}
	}

	x := mat.NewDense(len(reqs), len(solved)+1, nil)
	for i, req := range reqs {
		x.Set(i, 0, 1)
		for j, v := range eta.BuildVector(solved, req) {
			x.Set(i, j+1, v)
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, mat.NewVecDense(len(y), y)); err != nil {
		return nil, 0, err
	}

	weights := map[string]float64{eta.FeatureVehicle: 0}
	for j, name := range solved {
		weights[name] = beta.AtVec(j + 1)
	}
	return weights, beta.AtVec(0), nil
}

func seedStore(dataPath string, reqs []eta.PredictionRequest, y []float64) error {
	store, err := storage.New(dataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	start := time.Now().Add(-time.Duration(len(reqs)) * time.Minute)
	for i, req := range reqs {
		minutes := int(y[i] + 0.5)
		_, err := store.RecordPrediction(storage.PredictionRecord{
			Timestamp:    start.Add(time.Duration(i) * time.Minute),
			Distance:     req.Distance,
			HourOfDay:    req.HourOfDay,
			TrafficLevel: req.TrafficLevel,
			Weather:      req.Weather,
			Weight:       req.Weight,
			ETAMinutes:   minutes,
			Method:       eta.MethodFallback,
			Confidence:   eta.FallbackConfidence,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
