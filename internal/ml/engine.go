package ml

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"sensorwatch/internal/schema"
)

// ErrModelUnavailable is returned when scoring is requested before any
// artifact has been loaded.
var ErrModelUnavailable = errors.New("no scoring artifact loaded")

// ScoringError indicates the feature vector could not be produced for the
// loaded artifact. With a validated event this points at schema/artifact
// drift, so it is surfaced distinctly from ErrModelUnavailable.
type ScoringError struct {
	Reason string
}

func (e *ScoringError) Error() string { return "scoring failed: " + e.Reason }

// Result is one scoring outcome. ModelVersion always names the artifact that
// actually produced the score.
type Result struct {
	Score        float64
	Label        bool
	ModelVersion string
}

// Engine serves scores from the currently loaded artifact. The artifact is
// immutable and held behind an atomic pointer: concurrent reads need no
// locking, and Reload swaps in a fully built replacement so in-flight
// requests always see a complete artifact.
type Engine struct {
	current atomic.Pointer[Artifact]
}

func NewEngine() *Engine { return &Engine{} }

// LoadFrom reads the artifact in dir and makes it current. On error the
// previously loaded artifact (if any) stays in service.
func (e *Engine) LoadFrom(dir string) error {
	art, err := LoadArtifact(dir)
	if err != nil {
		return err
	}
	e.current.Store(art)
	return nil
}

// Loaded reports whether an artifact is in service.
func (e *Engine) Loaded() bool { return e.current.Load() != nil }

// Version returns the current artifact version, or "" when none is loaded.
func (e *Engine) Version() string {
	if art := e.current.Load(); art != nil {
		return art.Meta.ModelVersion
	}
	return ""
}

// Score maps a validated event onto the artifact's feature vector and
// returns its anomaly score, label, and the artifact version. Deterministic:
// the same event against the same artifact always yields the same result.
// The label comes from the threshold fixed at training time; there is no
// runtime override.
func (e *Engine) Score(ev *schema.SensorEvent) (Result, error) {
	art := e.current.Load()
	if art == nil {
		return Result{}, ErrModelUnavailable
	}
	x, err := featureVector(ev)
	if err != nil {
		return Result{}, err
	}
	score := art.Forest.Score(x)
	return Result{
		Score:        score,
		Label:        score >= art.Meta.Threshold,
		ModelVersion: art.Meta.ModelVersion,
	}, nil
}

// featureVector lays the event out in FeatureOrder. Non-finite values here
// mean something upstream of the validator drifted.
func featureVector(ev *schema.SensorEvent) ([]float64, error) {
	x := []float64{ev.TemperatureC, ev.HumidityPct, ev.SoundDB}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ScoringError{Reason: fmt.Sprintf("feature %s is not finite", FeatureOrder[i])}
		}
	}
	return x, nil
}
