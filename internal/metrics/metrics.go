// Package metrics exposes Prometheus instrumentation for ledger and revision outcomes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// EngineMetrics holds the engine's collectors.
type EngineMetrics struct {
	creditMutations *prometheus.CounterVec
	revisions       *prometheus.CounterVec
	creditsSpent    prometheus.Histogram
	retries         *prometheus.CounterVec
}

var (
	engineMetricsInstance *EngineMetrics
	engineMetricsOnce     sync.Once
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetricsInstance = New(prometheus.DefaultRegisterer)
	})
	return engineMetricsInstance
}

// New builds a metrics set and registers it with reg when non-nil.
func New(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		creditMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditengine",
				Name:      "credit_mutations_total",
				Help:      "Ledger operations by kind and result",
			},
			[]string{"op", "result"},
		),
		revisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditengine",
				Name:      "revisions_total",
				Help:      "Revision requests by type and result",
			},
			[]string{"type", "result"},
		),
		creditsSpent: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "creditengine",
				Name:      "credits_spent",
				Help:      "Credits deducted per successful spend",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250},
			},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditengine",
				Name:      "spend_retries_total",
				Help:      "Retried spend operations by action",
			},
			[]string{"action"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.creditMutations, m.revisions, m.creditsSpent, m.retries)
	}
	return m
}

// RecordCreditMutation counts a ledger operation outcome.
func (m *EngineMetrics) RecordCreditMutation(op, result string) {
	if m == nil {
		return
	}
	m.creditMutations.WithLabelValues(op, result).Inc()
}

// RecordCreditsSpent observes a successful deduction.
func (m *EngineMetrics) RecordCreditsSpent(amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsSpent.Observe(float64(amount))
}

// RecordRevision counts a revision outcome; revisionType is free, paid or empty.
func (m *EngineMetrics) RecordRevision(revisionType, result string) {
	if m == nil {
		return
	}
	if revisionType == "" {
		revisionType = "none"
	}
	m.revisions.WithLabelValues(revisionType, result).Inc()
}

// RecordRetry counts a retried spend attempt.
func (m *EngineMetrics) RecordRetry(action string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(action).Inc()
}
