package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	queryDuration *prometheus.HistogramVec
	cacheRequests *prometheus.CounterVec
	inferenceTime prometheus.Histogram
	ingestedRows  prometheus.Counter
	errorsTotal   *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		queryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rankpulse_query_duration_seconds",
				Help:    "Duration of analytics and store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankpulse_cache_requests_total",
				Help: "Response cache lookups by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		inferenceTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rankpulse_inference_duration_seconds",
				Help:    "Duration of single-app model inferences in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		ingestedRows: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankpulse_ingested_rows_total",
				Help: "Total ranking observations upserted by the consumer",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordQuery records the duration of one store or analytics operation.
func (r *Recorder) RecordQuery(op string, seconds float64) {
	r.queryDuration.WithLabelValues(op).Observe(seconds)
}

// RecordCache records a response-cache lookup outcome.
func (r *Recorder) RecordCache(op string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheRequests.WithLabelValues(op, outcome).Inc()
}

// RecordInference records the duration of one model inference.
func (r *Recorder) RecordInference(seconds float64) {
	r.inferenceTime.Observe(seconds)
}

// RecordIngest records a batch of upserted observations.
func (r *Recorder) RecordIngest(rows int) {
	r.ingestedRows.Add(float64(rows))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
