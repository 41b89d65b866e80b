// Package server exposes the prediction pipeline over HTTP: validate the
// event, score it, persist the prediction, respond. Validation failures
// never reach scoring; scoring failures never reach the store.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensorwatch/internal/metrics"
	"sensorwatch/internal/ml"
	"sensorwatch/internal/store"
)

// Machine-readable error codes; stable across releases.
const (
	codeInvalidBody      = "invalid_body"
	codeValidationFailed = "validation_failed"
	codeModelUnavailable = "model_unavailable"
	codeScoringError     = "scoring_error"
	codeStoreUnavailable = "store_unavailable"
	codeMethodNotAllowed = "method_not_allowed"
)

const (
	defaultRecentLimit = 10
	maxBodyBytes       = 1 << 20
	healthPingTimeout  = 2 * time.Second
)

// Server orchestrates the pipeline. The engine and store are injected at
// construction; the server owns neither.
type Server struct {
	engine   *ml.Engine
	store    store.Store
	modelDir string
}

func New(engine *ml.Engine, st store.Store, modelDir string) *Server {
	return &Server{engine: engine, store: st, modelDir: modelDir}
}

// Routes returns the service mux with all endpoints registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/predict", s.instrument("/predict", s.PredictHandler))
	mux.HandleFunc("/latest_anomalies", s.instrument("/latest_anomalies", s.LatestAnomaliesHandler))
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/reload", s.instrument("/reload", s.ReloadHandler))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// instrument tags every request with an id and records count + latency.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("X-Request-Id", uuid.NewString())
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(sw.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// errorBody is the failure envelope: a stable code, a human-readable
// message, and optional per-field details.
type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details []schemaFieldDetail `json:"details,omitempty"`
}

type schemaFieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details []schemaFieldDetail) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message, Details: details}})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed", nil)
}
