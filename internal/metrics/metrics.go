// Package metrics holds the Prometheus collectors for evaluation decisions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Learning phases used as the phase label.
const (
	PhaseRetrieve    = "retrieve"
	PhaseJudge       = "judge"
	PhaseConsolidate = "consolidate"
	PhaseStore       = "store"
)

// Metrics holds Prometheus metrics for the orchestrator.
type Metrics struct {
	DecisionsTotal         *prometheus.CounterVec
	CacheLookupsTotal      *prometheus.CounterVec
	EvaluatorFailuresTotal *prometheus.CounterVec
	LearningErrorsTotal    *prometheus.CounterVec
	EvaluateDuration       prometheus.Histogram
}

// New creates the collectors and registers them on reg.
//
// Metrics:
//   - tetrad_decisions_total{decision} - decisions returned, by outcome
//   - tetrad_cache_lookups_total{result} - result cache hits and misses
//   - tetrad_evaluator_failures_total{evaluator} - votes lost to errors or timeouts
//   - tetrad_learning_errors_total{phase} - pattern store failures
//   - tetrad_evaluate_duration_seconds - end to end Evaluate latency
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tetrad_decisions_total",
				Help: "Total number of evaluation decisions",
			},
			[]string{"decision"}, // "pass", "revise", "block"
		),

		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tetrad_cache_lookups_total",
				Help: "Total number of result cache lookups",
			},
			[]string{"result"}, // "hit" or "miss"
		),

		EvaluatorFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tetrad_evaluator_failures_total",
				Help: "Total number of evaluator calls that produced no vote",
			},
			[]string{"evaluator"},
		),

		LearningErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tetrad_learning_errors_total",
				Help: "Total number of pattern store failures during learning",
			},
			[]string{"phase"},
		),

		EvaluateDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tetrad_evaluate_duration_seconds",
				Help:    "Duration of Evaluate calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
	}
}

// RecordDecision counts a returned decision.
func (m *Metrics) RecordDecision(decision string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordEvaluatorFailure counts a missing vote.
func (m *Metrics) RecordEvaluatorFailure(evaluator string) {
	if m == nil {
		return
	}
	m.EvaluatorFailuresTotal.WithLabelValues(evaluator).Inc()
}

// RecordLearningError counts a pattern store failure in the given phase.
func (m *Metrics) RecordLearningError(phase string) {
	if m == nil {
		return
	}
	m.LearningErrorsTotal.WithLabelValues(phase).Inc()
}

// ObserveEvaluate records how long an Evaluate call took.
func (m *Metrics) ObserveEvaluate(d time.Duration) {
	if m == nil {
		return
	}
	m.EvaluateDuration.Observe(d.Seconds())
}
