// Package schema defines the sensor event payload and its validation rules.
// Validation is a pure function from raw JSON to a typed event or a full set
// of field errors; nothing downstream ever sees an unvalidated event.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// Physical sanity ranges for each sensor channel. Readings outside these are
// rejected before scoring, not clamped.
const (
	MinTemperatureC = -50.0
	MaxTemperatureC = 200.0
	MinHumidityPct  = 0.0
	MaxHumidityPct  = 100.0
	MinSoundDB      = 0.0
	MaxSoundDB      = 200.0

	MaxStationIDLen = 64
)

// SensorEvent is one validated reading from a station. Immutable once built;
// only Validate constructs it.
type SensorEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Sequence     int64     `json:"sequence"`
	StationID    string    `json:"station_id"`
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
	SoundDB      float64   `json:"sound_db"`
}

// FieldError names one violated constraint on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated constraint, not just the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}
