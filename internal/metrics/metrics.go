// Package metrics provides Prometheus collectors for the change queue,
// reasoning calls and builds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adqueue"

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// RequestsTotal counts submissions. Labels: category
	RequestsTotal *prometheus.CounterVec

	// StepsTotal counts asynchronous processing steps.
	// Labels: step (variations, analyze), result (success, error, stale)
	StepsTotal *prometheus.CounterVec

	// StepDuration tracks how long processing steps take. Labels: step
	StepDuration *prometheus.HistogramVec

	// QueueRequests is the number of active requests. Labels: state
	QueueRequests *prometheus.GaugeVec

	// BuildsTotal counts build attempts. Labels: result (success, error)
	BuildsTotal *prometheus.CounterVec

	// BuildOutcomes counts per-request build outcomes. Labels: outcome
	BuildOutcomes *prometheus.CounterVec

	// BuildDuration tracks end-to-end build time.
	BuildDuration prometheus.Histogram
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_submitted_total",
			Help:      "Total number of submitted change requests by category",
		}, []string{"category"}),
		StepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of processing steps by step and result",
		}, []string{"step", "result"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of processing steps in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"step"}),
		QueueRequests: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "requests",
			Help:      "Current number of active requests by lifecycle state",
		}, []string{"state"}),
		BuildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Total number of build attempts by result",
		}, []string{"result"}),
		BuildOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Total number of built requests by outcome",
		}, []string{"outcome"}),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of builds in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Submitted records a submission.
func (m *Metrics) Submitted(category string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(category).Inc()
}

// Step records one finished processing step.
func (m *Metrics) Step(step, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(step, result).Inc()
	m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// SetQueue replaces the per-state gauge values. States missing from counts
// are reset to zero.
func (m *Metrics) SetQueue(states []string, counts map[string]int) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.QueueRequests.WithLabelValues(s).Set(float64(counts[s]))
	}
}

// Build records a finished build attempt.
func (m *Metrics) Build(result string, applied, skipped int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(result).Inc()
	m.BuildDuration.Observe(elapsed.Seconds())
	if applied > 0 {
		m.BuildOutcomes.WithLabelValues("applied").Add(float64(applied))
	}
	if skipped > 0 {
		m.BuildOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	}
}
