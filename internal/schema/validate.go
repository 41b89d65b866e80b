package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validate parses a raw JSON payload into a SensorEvent. On constraint
// violations it returns a *ValidationError listing every failed field; a
// wrong-typed field is one violation among the rest, never a short-circuit.
// A payload that is not a JSON object at all yields a plain error instead.
// Unknown fields are ignored on purpose: newer stations may send extras we
// do not understand yet.
func Validate(data []byte) (*SensorEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	verr := &ValidationError{}
	ev := &SensorEvent{}

	if ts := decodeField[string](verr, fields, "timestamp", "string"); ts != nil {
		parsed, err := time.Parse(time.RFC3339, *ts)
		if err != nil {
			verr.add("timestamp", "must be an ISO-8601 timestamp with offset")
		} else {
			ev.Timestamp = parsed
		}
	}

	if seq := decodeField[int64](verr, fields, "sequence", "integer"); seq != nil {
		if *seq < 0 {
			verr.add("sequence", "must be >= 0")
		} else {
			ev.Sequence = *seq
		}
	}

	if sid := decodeField[string](verr, fields, "station_id", "string"); sid != nil {
		switch id := strings.TrimSpace(*sid); {
		case id == "":
			verr.add("station_id", "must be non-empty")
		case len(id) > MaxStationIDLen:
			verr.add("station_id", fmt.Sprintf("must be at most %d characters", MaxStationIDLen))
		default:
			ev.StationID = id
		}
	}

	ev.TemperatureC = checkRange(verr, fields, "temperature_c", MinTemperatureC, MaxTemperatureC)
	ev.HumidityPct = checkRange(verr, fields, "humidity_pct", MinHumidityPct, MaxHumidityPct)
	ev.SoundDB = checkRange(verr, fields, "sound_db", MinSoundDB, MaxSoundDB)

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return ev, nil
}

// decodeField pulls one field out of the payload. Missing and explicit null
// are "required"; a wrong JSON type is "expected <type>". Either way the
// error is accumulated and validation of the other fields continues.
func decodeField[T any](verr *ValidationError, fields map[string]json.RawMessage, name, typeName string) *T {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		verr.add(name, "required")
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		verr.add(name, "expected "+typeName)
		return nil
	}
	return &v
}

func checkRange(verr *ValidationError, fields map[string]json.RawMessage, name string, lo, hi float64) float64 {
	v := decodeField[float64](verr, fields, name, "number")
	if v == nil {
		return 0
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		verr.add(name, "must be finite")
		return 0
	}
	if *v < lo || *v > hi {
		verr.add(name, fmt.Sprintf("must be between %g and %g", lo, hi))
		return 0
	}
	return *v
}
