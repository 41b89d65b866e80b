// Package metrics registers the service's Prometheus collectors. Handlers
// record per-endpoint request counts and latencies; the pipeline records
// scoring and persistence outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	PredictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions scored and persisted",
		},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of events labeled anomalous",
		},
		[]string{"station_id"},
	)

	ValidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Total number of rejected event payloads",
		},
	)

	ScoringLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scoring_latency_seconds",
			Help:    "Model scoring latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	StoreAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_appends_total",
			Help: "Total number of prediction store appends",
		},
		[]string{"status"},
	)

	StoreAppendLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_append_latency_seconds",
			Help:    "Prediction store append latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ModelLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "model_loaded",
			Help: "1 when a scoring artifact is loaded, 0 otherwise",
		},
	)
)
