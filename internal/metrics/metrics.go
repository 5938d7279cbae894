// Package metrics provides Prometheus metrics for group-digest.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts pipeline runs by terminal state (delivered, short_circuited, failed).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupdigest",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// FailuresTotal counts failed runs by stage and error kind.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupdigest",
			Name:      "failures_total",
			Help:      "Total number of failed runs by stage and kind",
		},
		[]string{"stage", "kind"},
	)

	// StageDuration measures how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "groupdigest",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// PostsTotal counts posts seen at each point of the pipeline.
	PostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupdigest",
			Name:      "posts_total",
			Help:      "Posts counted after extraction and after novelty filtering",
		},
		[]string{"phase"},
	)

	// ExtractionParseFailures counts screenshots whose model output had no usable JSON array.
	ExtractionParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groupdigest",
			Name:      "extraction_parse_failures_total",
			Help:      "Screenshots whose extraction response could not be parsed",
		},
	)

	// StoreErrorsTotal counts novelty store errors by operation.
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupdigest",
			Name:      "store_errors_total",
			Help:      "Total number of novelty store errors",
		},
		[]string{"operation"},
	)
)

// RecordRun records the terminal state of a run.
func RecordRun(outcome string) {
	RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordFailure records a failed run.
func RecordFailure(stage, kind string) {
	RunsTotal.WithLabelValues("failed").Inc()
	FailuresTotal.WithLabelValues(stage, kind).Inc()
}

// ObserveStage records the duration of a stage.
func ObserveStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// AddPosts adds n to the post counter for a phase ("extracted", "new").
func AddPosts(phase string, n int) {
	PostsTotal.WithLabelValues(phase).Add(float64(n))
}

// RecordStoreError records a novelty store error.
func RecordStoreError(operation string) {
	StoreErrorsTotal.WithLabelValues(operation).Inc()
}
