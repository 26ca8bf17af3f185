package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"uplink-monitor/pkg/model"
)

func TestTransitionMovesStateGauge(t *testing.T) {
	m := New()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("UNKNOWN")))

	m.Transition(model.StateUnknown, model.StateDown)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("UNKNOWN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("DOWN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("UNKNOWN", "DOWN")))
}

func TestObserveCycle(t *testing.T) {
	m := New()
	ms := int64(42)
	m.ObserveCycle(100*time.Millisecond, model.ProbeResult{Success: true, LatencyMs: &ms})
	m.ControllerError("auth")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.probeLatency))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.controllerErrors.WithLabelValues("auth")))
}
