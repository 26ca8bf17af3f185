// Package metrics exposes Prometheus collectors for the monitor loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uplink-monitor/pkg/model"
)

var allStates = []model.HealthState{model.StateOK, model.StateDegraded, model.StateDown, model.StateUnknown}

// Metrics groups the collectors; each instance owns its registry.
type Metrics struct {
	reg              *prometheus.Registry
	state            *prometheus.GaugeVec
	cycles           prometheus.Counter
	cycleDuration    prometheus.Histogram
	controllerErrors *prometheus.CounterVec
	probeLatency     prometheus.Gauge
	transitions      *prometheus.CounterVec
	observers        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uplink_monitor_state",
			Help: "1 for the current uplink health state.",
		}, []string{"state"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uplink_monitor_cycles_total",
			Help: "Completed polling cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uplink_monitor_cycle_duration_seconds",
			Help:    "Wall time of one polling cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		controllerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uplink_monitor_controller_errors_total",
			Help: "Controller query failures by kind.",
		}, []string{"kind"}),
		probeLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uplink_monitor_probe_latency_ms",
			Help: "Latency of the last successful probe.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uplink_monitor_transitions_total",
			Help: "State transitions.",
		}, []string{"from", "to"}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uplink_monitor_observers",
			Help: "Connected push channel observers.",
		}),
	}
	m.reg.MustRegister(m.state, m.cycles, m.cycleDuration, m.controllerErrors, m.probeLatency, m.transitions, m.observers)
	m.SetState(model.StateUnknown)
	return m
}

func (m *Metrics) SetState(s model.HealthState) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) ObserveCycle(d time.Duration, probe model.ProbeResult) {
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
	if probe.LatencyMs != nil {
		m.probeLatency.Set(float64(*probe.LatencyMs))
	}
}

func (m *Metrics) ControllerError(kind string) {
	m.controllerErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Transition(from, to model.HealthState) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
	m.SetState(to)
}

func (m *Metrics) SetObservers(n int) {
	m.observers.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
