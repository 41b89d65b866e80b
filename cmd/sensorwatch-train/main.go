// sensorwatch-train builds a scoring artifact from simulated normal
// telemetry. It grows an isolation forest over a seeded random walk, picks
// the labeling threshold as a quantile of the training scores, and writes
// model.json plus metadata.json into the output directory.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"sensorwatch/internal/logging"
	"sensorwatch/internal/ml"
	"sensorwatch/internal/simulate"
)

func main() {
	var (
		samples       = flag.Int("n", 5000, "number of training samples to simulate")
		seed          = flag.Int64("seed", 42, "rng seed for simulation and training")
		contamination = flag.Float64("contamination", 0.03, "expected anomaly fraction; sets the label threshold")
		trees         = flag.Int("trees", 300, "number of isolation trees")
		sampleSize    = flag.Int("sample-size", 256, "subsample size per tree")
		outDir        = flag.String("out", "models", "artifact output directory")
	)
	flag.Parse()

	if *samples < 100 {
		logging.Fatalf("need at least 100 samples, got %d", *samples)
	}
	if *contamination <= 0 || *contamination >= 0.5 {
		logging.Fatalf("contamination must be in (0, 0.5), got %g", *contamination)
	}

	walk := simulate.NewWalk(*seed)
	X := make([][]float64, *samples)
	for i := range X {
		r := walk.Next()
		X[i] = []float64{r.TemperatureC, r.HumidityPct, r.SoundDB}
	}

	logging.Infof("training isolation forest: %d samples, %d trees, seed %d", *samples, *trees, *seed)
	start := time.Now()
	forest := ml.NewIsolationForest(*trees, *sampleSize)
	forest.Train(X, rand.New(rand.NewSource(*seed)))
	logging.Infof("trained in %s", time.Since(start).Round(time.Millisecond))

	// Threshold at the (1 - contamination) quantile of the training scores,
	// so roughly that fraction of normal traffic lands above it.
	scores := make([]float64, len(X))
	for i, x := range X {
		scores[i] = forest.Score(x)
	}
	sort.Float64s(scores)
	idx := int(float64(len(scores)) * (1 - *contamination))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	threshold := scores[idx]

	art := &ml.Artifact{
		Forest: forest,
		Meta: ml.Metadata{
			ModelVersion:    fmt.Sprintf("iforest-v%d", time.Now().Unix()),
			ModelType:       "isolation_forest",
			TrainedAt:       time.Now().UTC(),
			FeatureOrder:    append([]string(nil), ml.FeatureOrder...),
			Threshold:       threshold,
			Contamination:   *contamination,
			TrainingSamples: len(X),
		},
	}
	if err := ml.SaveArtifact(*outDir, art); err != nil {
		logging.Fatalf("save artifact: %v", err)
	}
	logging.Infof("wrote %s (threshold %.4f) to %s", art.Meta.ModelVersion, threshold, *outDir)
}
