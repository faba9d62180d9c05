// Package metrics exposes prometheus collectors for transitions, rule runs
// and action executions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ruleflow"

type Metrics struct {
	transitions     *prometheus.CounterVec
	transitionTime  *prometheus.HistogramVec
	ruleExecutions  *prometheus.CounterVec
	timeBasedRuns   *prometheus.CounterVec
	actions         *prometheus.CounterVec
	actionDurations *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Workflow transitions executed, by workflow, transition and outcome.",
			},
			[]string{"workflow", "transition", "outcome"},
		),
		transitionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Duration of workflow transition executions.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"workflow"},
		),
		ruleExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_executions_total",
				Help:      "Automation rule executions per record, by rule, trigger and outcome.",
			},
			[]string{"rule", "trigger", "outcome"},
		),
		timeBasedRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "time_based_runs_total",
				Help:      "Time based rule runs, by rule and status.",
			},
			[]string{"rule", "status"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_executions_total",
				Help:      "Server action executions, by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		actionDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of server action executions.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.transitions,
			m.transitionTime,
			m.ruleExecutions,
			m.timeBasedRuns,
			m.actions,
			m.actionDurations,
		)
	}

	return m
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}

	return "success"
}

func (m *Metrics) ObserveTransition(workflow, transition string, started time.Time, err error) {
	if m == nil {
		return
	}

	m.transitions.WithLabelValues(workflow, transition, outcome(err)).Inc()
	m.transitionTime.WithLabelValues(workflow).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveRule(rule, trigger string, err error) {
	if m == nil {
		return
	}

	m.ruleExecutions.WithLabelValues(rule, trigger, outcome(err)).Inc()
}

// ObserveTimeBasedRun counts one RunTimeBased pass of a rule with its final
// status (ok, failed, skipped).
func (m *Metrics) ObserveTimeBasedRun(rule, status string) {
	if m == nil {
		return
	}

	m.timeBasedRuns.WithLabelValues(rule, status).Inc()
}

func (m *Metrics) ObserveAction(kind string, started time.Time, err error) {
	if m == nil {
		return
	}

	m.actions.WithLabelValues(kind, outcome(err)).Inc()
	m.actionDurations.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
