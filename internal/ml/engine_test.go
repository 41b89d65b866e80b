package ml

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/schema"
)

func writeTestArtifact(t *testing.T, mutate func(*Metadata)) string {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	forest := NewIsolationForest(50, 128)
	forest.Train(clusteredData(512, rng), rng)
	meta := Metadata{
		ModelVersion:    "iforest-test-1",
		ModelType:       "isolation_forest",
		TrainedAt:       time.Now().UTC(),
		FeatureOrder:    append([]string(nil), FeatureOrder...),
		Threshold:       0.6,
		Contamination:   0.03,
		TrainingSamples: 512,
	}
	if mutate != nil {
		mutate(&meta)
	}
	dir := t.TempDir()
	require.NoError(t, SaveArtifact(dir, &Artifact{Forest: forest, Meta: meta}))
	return dir
}

func testEvent() *schema.SensorEvent {
	return &schema.SensorEvent{
		Timestamp:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Sequence:     1,
		StationID:    "station_001",
		TemperatureC: 70.2,
		HumidityPct:  44.7,
		SoundDB:      66.1,
	}
}

func TestScoreBeforeLoad(t *testing.T) {
	e := NewEngine()
	_, err := e.Score(testEvent())
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.False(t, e.Loaded())
	assert.Empty(t, e.Version())
}

func TestScoreDeterminism(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.LoadFrom(writeTestArtifact(t, nil)))

	first, err := e.Score(testEvent())
	require.NoError(t, err)
	assert.Equal(t, "iforest-test-1", first.ModelVersion)
	for i := 0; i < 20; i++ {
		got, err := e.Score(testEvent())
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestLabelFollowsThreshold(t *testing.T) {
	// Threshold 0 labels everything; threshold 1 labels nothing the forest
	// can actually reach.
	e := NewEngine()
	require.NoError(t, e.LoadFrom(writeTestArtifact(t, func(m *Metadata) { m.Threshold = 0 })))
	res, err := e.Score(testEvent())
	require.NoError(t, err)
	assert.True(t, res.Label)

	require.NoError(t, e.LoadFrom(writeTestArtifact(t, func(m *Metadata) { m.Threshold = 1 })))
	res, err = e.Score(testEvent())
	require.NoError(t, err)
	assert.False(t, res.Label)
}

func TestLoadRejectsFeatureMismatch(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Metadata)
	}{
		{"wrong order", func(m *Metadata) {
			m.FeatureOrder = []string{"humidity_pct", "temperature_c", "sound_db"}
		}},
		{"missing feature", func(m *Metadata) {
			m.FeatureOrder = []string{"temperature_c", "humidity_pct"}
		}},
		{"extra feature", func(m *Metadata) {
			m.FeatureOrder = append(append([]string(nil), FeatureOrder...), "vibration_g")
		}},
		{"empty version", func(m *Metadata) { m.ModelVersion = "" }},
		{"threshold out of range", func(m *Metadata) { m.Threshold = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEngine()
			assert.Error(t, e.LoadFrom(writeTestArtifact(t, tc.mutate)))
			assert.False(t, e.Loaded())
		})
	}
}

func TestLoadMissingDir(t *testing.T) {
	e := NewEngine()
	err := e.LoadFrom(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFailedReloadKeepsCurrentArtifact(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.LoadFrom(writeTestArtifact(t, nil)))

	broken := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(broken, "metadata.json"), []byte("{"), 0o644))
	require.Error(t, e.LoadFrom(broken))

	assert.True(t, e.Loaded())
	assert.Equal(t, "iforest-test-1", e.Version())
}

func TestReloadSwapsVersion(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.LoadFrom(writeTestArtifact(t, nil)))
	require.NoError(t, e.LoadFrom(writeTestArtifact(t, func(m *Metadata) { m.ModelVersion = "iforest-test-2" })))
	assert.Equal(t, "iforest-test-2", e.Version())
	res, err := e.Score(testEvent())
	require.NoError(t, err)
	assert.Equal(t, "iforest-test-2", res.ModelVersion)
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := writeTestArtifact(t, nil)
	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, FeatureOrder, meta.FeatureOrder)
}
