package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"sensorwatch/internal/logging"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/ml"
	"sensorwatch/internal/schema"
	"sensorwatch/internal/store"
)

// predictResponse is the success body for POST /predict.
type predictResponse struct {
	AnomalyScore float64   `json:"anomaly_score"`
	Label        bool      `json:"label"`
	ModelVersion string    `json:"model_version"`
	ScoredAt     time.Time `json:"scored_at"`
	RecordID     int64     `json:"record_id"`
}

// PredictHandler runs one event through the pipeline. Per-request states:
// received -> validating -> scoring -> persisting -> responded, with
// terminal rejections out of validating and terminal failures out of
// scoring or persisting.
func (s *Server) PredictHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "unable to read request body", nil)
		return
	}

	// Validating.
	ev, err := schema.Validate(body)
	if err != nil {
		metrics.ValidationFailures.Inc()
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, codeValidationFailed, "event payload failed validation", fieldDetails(verr))
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidBody, "request body is not a JSON object", nil)
		return
	}

	// Scoring. A prediction that cannot be computed is never logged.
	scoreStart := time.Now()
	res, err := s.engine.Score(ev)
	metrics.ScoringLatency.Observe(time.Since(scoreStart).Seconds())
	if err != nil {
		s.writeScoringError(w, err)
		return
	}
	scoredAt := time.Now().UTC()

	resp := predictResponse{
		AnomalyScore: res.Score,
		Label:        res.Label,
		ModelVersion: res.ModelVersion,
		ScoredAt:     scoredAt,
	}
	rawOut, _ := json.Marshal(resp)

	// Persisting. Append is the durability boundary: a success response
	// guarantees the record is on disk.
	appendStart := time.Now()
	id, err := s.store.Append(r.Context(), store.Prediction{
		SensorEvent:  *ev,
		AnomalyScore: res.Score,
		Label:        res.Label,
		ModelVersion: res.ModelVersion,
		ScoredAt:     scoredAt,
		RawInput:     body,
		RawOutput:    rawOut,
	})
	metrics.StoreAppendLatency.Observe(time.Since(appendStart).Seconds())
	if err != nil {
		metrics.StoreAppends.WithLabelValues("error").Inc()
		logging.Errorf("append prediction: %v", err)
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable,
			"prediction was computed but could not be durably recorded", nil)
		return
	}
	metrics.StoreAppends.WithLabelValues("ok").Inc()
	metrics.PredictionsTotal.Inc()
	if res.Label {
		metrics.AnomaliesTotal.WithLabelValues(ev.StationID).Inc()
	}

	resp.RecordID = id
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeScoringError(w http.ResponseWriter, err error) {
	var serr *ml.ScoringError
	switch {
	case errors.Is(err, ml.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeModelUnavailable, "no scoring artifact is loaded", nil)
	case errors.As(err, &serr):
		logging.Errorf("scoring: %v", serr)
		writeError(w, http.StatusInternalServerError, codeScoringError, serr.Error(), nil)
	default:
		logging.Errorf("scoring: %v", err)
		writeError(w, http.StatusInternalServerError, codeScoringError, "scoring failed", nil)
	}
}

// LatestAnomaliesHandler serves GET /latest_anomalies?limit=N: anomalous
// predictions only, newest first. Limit policy: missing or malformed limit
// falls back to 10; otherwise clamped to [1, store.MaxRecentLimit]. Always
// responds 200 with an array, empty when nothing qualifies.
func (s *Server) LatestAnomaliesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > store.MaxRecentLimit {
		limit = store.MaxRecentLimit
	}

	recs, err := s.store.RecentAnomalies(r.Context(), limit)
	if err != nil {
		logging.Errorf("recent anomalies: %v", err)
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "prediction store is unavailable", nil)
		return
	}
	if recs == nil {
		recs = []store.StoredPrediction{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// healthResponse reports component readiness independent of request volume.
type healthResponse struct {
	Status         string `json:"status"`
	ModelLoaded    bool   `json:"model_loaded"`
	StoreReachable bool   `json:"store_reachable"`
	ModelVersion   string `json:"model_version,omitempty"`
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	modelLoaded := s.engine.Loaded()
	storeReachable := s.store.Ping(ctx) == nil
	if modelLoaded {
		metrics.ModelLoaded.Set(1)
	} else {
		metrics.ModelLoaded.Set(0)
	}

	status := "ok"
	if !modelLoaded || !storeReachable {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         status,
		ModelLoaded:    modelLoaded,
		StoreReachable: storeReachable,
		ModelVersion:   s.engine.Version(),
	})
}

// ReloadHandler re-reads the artifact directory and swaps it in atomically.
// In-flight requests keep scoring against the artifact they started with;
// a failed reload leaves the current artifact in service.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.engine.LoadFrom(s.modelDir); err != nil {
		logging.Errorf("reload model: %v", err)
		writeError(w, http.StatusServiceUnavailable, codeModelUnavailable, "artifact reload failed: "+err.Error(), nil)
		return
	}
	logging.Infof("scoring artifact reloaded, version %s", s.engine.Version())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded", "model_version": s.engine.Version()})
}

func fieldDetails(verr *schema.ValidationError) []schemaFieldDetail {
	out := make([]schemaFieldDetail, len(verr.Fields))
	for i, f := range verr.Fields {
		out[i] = schemaFieldDetail{Field: f.Field, Message: f.Message}
	}
	return out
}
