package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "animalfaces"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"path", "method", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"},
	)
	Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by outcome and predicted label",
		}, []string{"outcome", "label"},
	)
	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Preprocess plus forward pass duration",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_lookups_total",
			Help:      "Prediction cache lookups by result",
		}, []string{"result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, Predictions, InferenceDuration, CacheLookups)
}

// Prediction outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInvalidType  = "invalid_type"
	OutcomeInvalidImage = "invalid_image"
	OutcomeTooLarge     = "too_large"
	OutcomeTimeout      = "timeout"
	OutcomeError        = "error"
)

func ObservePrediction(outcome, label string) {
	Predictions.WithLabelValues(outcome, label).Inc()
}

func ObserveInference(d time.Duration) {
	InferenceDuration.Observe(d.Seconds())
}

func ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(result).Inc()
}
