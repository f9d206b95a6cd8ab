package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// EntitlementMetrics records quota decisions, escalations and experiment
// assignments.
type EntitlementMetrics struct {
	decisions   *prometheus.CounterVec
	escalations *prometheus.CounterVec
	assignments *prometheus.CounterVec
}

// NewEntitlementMetrics registers the entitlement metrics on the provided
// registerer. A nil registerer yields a no-op recorder.
func NewEntitlementMetrics(reg prometheus.Registerer) *EntitlementMetrics {
	if reg == nil {
		return &EntitlementMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_decisions_total",
		Help: "Quota decisions by outcome and reason.",
	}, []string{"outcome", "reason"})
	escalations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heavy_user_escalations_total",
		Help: "Heavy-user escape valve checks by outcome.",
	}, []string{"outcome"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "experiment_assignments_total",
		Help: "New experiment assignments by experiment and group.",
	}, []string{"experiment", "group"})
	reg.MustRegister(decisions, escalations, assignments)
	return &EntitlementMetrics{
		decisions:   decisions,
		escalations: escalations,
		assignments: assignments,
	}
}

// ObserveDecision counts one quota decision.
func (m *EntitlementMetrics) ObserveDecision(allowed bool, reason string) {
	if m == nil || m.decisions == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.decisions.WithLabelValues(outcome, normalizeLabel(reason)).Inc()
}

// ObserveEscalation counts one escape valve evaluation.
func (m *EntitlementMetrics) ObserveEscalation(activated bool) {
	if m == nil || m.escalations == nil {
		return
	}
	outcome := "skipped"
	if activated {
		outcome = "activated"
	}
	m.escalations.WithLabelValues(outcome).Inc()
}

// ObserveAssignment counts one newly persisted assignment.
func (m *EntitlementMetrics) ObserveAssignment(experiment, group string) {
	if m == nil || m.assignments == nil {
		return
	}
	m.assignments.WithLabelValues(normalizeLabel(experiment), normalizeLabel(group)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(value, " ", "_")
}
