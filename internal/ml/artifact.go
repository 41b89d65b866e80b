package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File names inside a model directory. The forest and its metadata sidecar
// always travel together; training writes both, loading reads both.
const (
	modelFileName    = "model.json"
	metadataFileName = "metadata.json"
)

// FeatureOrder is the exact feature vector layout every artifact must
// declare. An artifact trained against any other layout is unusable here.
var FeatureOrder = []string{"temperature_c", "humidity_pct", "sound_db"}

// Metadata is the sidecar record describing a scoring artifact.
type Metadata struct {
	ModelVersion    string    `json:"model_version"`
	ModelType       string    `json:"model_type"`
	TrainedAt       time.Time `json:"trained_at"`
	FeatureOrder    []string  `json:"feature_order"`
	Threshold       float64   `json:"threshold"`
	Contamination   float64   `json:"contamination"`
	TrainingSamples int       `json:"training_samples"`
}

// Artifact is a loaded, immutable scoring model plus its metadata. It is
// never mutated after load; reload builds a fresh Artifact and swaps it in.
type Artifact struct {
	Forest *IsolationForest
	Meta   Metadata
}

// LoadArtifact reads a model directory written by the trainer. Structural
// problems (unreadable files, wrong feature order, bad threshold) are load
// errors: the caller must not serve with a partially valid artifact.
func LoadArtifact(dir string) (*Artifact, error) {
	metaRaw, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("parse model metadata: %w", err)
	}
	if meta.ModelVersion == "" {
		return nil, fmt.Errorf("model metadata missing model_version")
	}
	if err := checkFeatureOrder(meta.FeatureOrder); err != nil {
		return nil, err
	}
	if meta.Threshold < 0 || meta.Threshold > 1 {
		return nil, fmt.Errorf("model threshold %g outside [0,1]", meta.Threshold)
	}

	modelRaw, err := os.ReadFile(filepath.Join(dir, modelFileName))
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	forest := &IsolationForest{}
	if err := forest.UnmarshalBinary(modelRaw); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if len(forest.Trees) == 0 {
		return nil, fmt.Errorf("model %s has no trees", meta.ModelVersion)
	}
	return &Artifact{Forest: forest, Meta: meta}, nil
}

// SaveArtifact writes the forest and metadata into dir. Both files are
// written to a temp path first and renamed so a crashed writer never leaves
// a half-written artifact behind.
func SaveArtifact(dir string, art *Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	modelRaw, err := art.Forest.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, modelFileName), modelRaw); err != nil {
		return err
	}
	metaRaw, err := json.MarshalIndent(art.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model metadata: %w", err)
	}
	return writeAtomic(filepath.Join(dir, metadataFileName), metaRaw)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", filepath.Base(path), err)
	}
	return nil
}

func checkFeatureOrder(got []string) error {
	if len(got) != len(FeatureOrder) {
		return fmt.Errorf("model expects %d features, service provides %d (%v)", len(got), len(FeatureOrder), FeatureOrder)
	}
	for i, name := range FeatureOrder {
		if got[i] != name {
			return fmt.Errorf("model feature %d is %q, service provides %q", i, got[i], name)
		}
	}
	return nil
}
