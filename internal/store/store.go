// Package store persists predictions in an append-only log and serves the
// recent-anomalies query. Records are totally ordered by a store-assigned id;
// client timestamps and sequence numbers are stored but never used for
// ordering, because stations may be out of order or clock-skewed.
package store

import (
	"context"
	"encoding/json"
	"time"

	"sensorwatch/internal/schema"
)

// MaxRecentLimit caps how many records one read may return.
const MaxRecentLimit = 100

// Prediction is a scored event ready to be logged. RawInput and RawOutput
// keep the exact request/response bytes for later inspection.
type Prediction struct {
	schema.SensorEvent
	AnomalyScore float64         `json:"anomaly_score"`
	Label        bool            `json:"label"`
	ModelVersion string          `json:"model_version"`
	ScoredAt     time.Time       `json:"scored_at"`
	RawInput     json.RawMessage `json:"-"`
	RawOutput    json.RawMessage `json:"-"`
}

// StoredPrediction is a Prediction with its log identity. The id orders
// records by insertion; it is not a business identifier.
type StoredPrediction struct {
	ID int64 `json:"id"`
	Prediction
}

// Store is the durable prediction log. Append must not return until the
// record is committed; concurrent appends must neither interleave nor lose
// records. RecentAnomalies returns anomalous records newest first, from a
// snapshot consistent at the start of the read.
type Store interface {
	Append(ctx context.Context, p Prediction) (int64, error)
	RecentAnomalies(ctx context.Context, limit int) ([]StoredPrediction, error)
	Ping(ctx context.Context) error
	Close() error
}

// UnavailableError marks a failure of the underlying log. Requests that hit
// it fail hard; the scoring result is discarded, never partially written.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string { return "prediction store unavailable: " + e.Op + ": " + e.Err.Error() }

func (e *UnavailableError) Unwrap() error { return e.Err }

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}
