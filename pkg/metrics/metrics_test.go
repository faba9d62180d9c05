package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTransition("leave_request", "approve", time.Now(), nil)
	m.ObserveTransition("leave_request", "approve", time.Now(), errors.New("boom"))
	m.ObserveRule("escalate", "on_write", nil)
	m.ObserveTimeBasedRun("remind", "skipped")
	m.ObserveAction("call_webhook", time.Now(), errors.New("timeout"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.transitions.WithLabelValues("leave_request", "approve", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.transitions.WithLabelValues("leave_request", "approve", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ruleExecutions.WithLabelValues("escalate", "on_write", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.timeBasedRuns.WithLabelValues("remind", "skipped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.actions.WithLabelValues("call_webhook", "failure")), 0)

	count, err := testutil.GatherAndCount(reg, "ruleflow_transition_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveTransition("w", "t", time.Now(), nil)
		m.ObserveRule("r", "manual", nil)
		m.ObserveTimeBasedRun("r", "ok")
		m.ObserveAction("run_code", time.Now(), nil)
	})
}
