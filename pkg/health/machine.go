// Package health turns noisy per-cycle WAN and probe signals into a stable
// uplink state using consecutive-signal hysteresis.
package health

import (
	"fmt"
	"sync"
	"time"

	"uplink-monitor/pkg/model"
)

// Thresholds configures the hysteresis counters.
type Thresholds struct {
	DegradedAfterFails int `yaml:"degradedAfterFails"`
	DownAfterFails     int `yaml:"downAfterFails"`
	OKAfterSuccesses   int `yaml:"okAfterSuccesses"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{DegradedAfterFails: 2, DownAfterFails: 4, OKAfterSuccesses: 2}
}

// Input is everything one cycle observed.
type Input struct {
	Time            time.Time
	WanUp           *bool
	WanDetail       map[string]any
	Probe           model.ProbeResult
	Gateway         *model.Gateway
	ControllerError string
}

// Outcome is the result of applying one Input.
type Outcome struct {
	Prev  model.HealthState
	Next  model.HealthState
	Entry model.HistoryEntry
}

// Changed reports whether the cycle produced a state transition.
func (o Outcome) Changed() bool {
	return o.Prev != o.Next
}

// Machine holds the current state, counters and history. All mutation goes
// through Apply, which holds a single lock for the whole cycle.
type Machine struct {
	mu        sync.Mutex
	th        Thresholds
	state     model.HealthState
	fails     int
	successes int
	history   *History
}

func NewMachine(th Thresholds, historySize int) *Machine {
	return &Machine{
		th:      th,
		state:   model.StateUnknown,
		history: NewHistory(historySize),
	}
}

// Apply evaluates one cycle, appends exactly one history entry and returns
// the transition.
func (m *Machine) Apply(in Input) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	next, reason, note := m.evaluate(in)
	m.state = next

	ts := in.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := model.HistoryEntry{
		Timestamp:        ts,
		State:            next,
		WanUp:            in.WanUp,
		WanVerdictDetail: in.WanDetail,
		Probe:            in.Probe,
		Gateway:          in.Gateway,
		Reason:           reason,
		Note:             note,
		ControllerError:  in.ControllerError,
	}
	m.history.Push(entry)
	return Outcome{Prev: prev, Next: next, Entry: entry}
}

func (m *Machine) evaluate(in Input) (model.HealthState, string, string) {
	if in.ControllerError != "" {
		m.reset()
		return model.StateUnknown, model.ReasonControllerError, "controller query failed"
	}
	if in.WanUp != nil && !*in.WanUp {
		m.reset()
		return model.StateDown, model.ReasonWanLinkDown, "controller reports WAN link down"
	}

	if !in.Probe.Success {
		m.fails++
		m.successes = 0
		note := fmt.Sprintf("probe failed %d/%d", m.fails, m.th.DownAfterFails)
		switch {
		case m.fails >= m.th.DownAfterFails:
			return model.StateDown, model.ReasonProbeDown, note
		case m.fails >= m.th.DegradedAfterFails:
			return model.StateDegraded, model.ReasonProbeDegraded, note
		default:
			return m.state, model.ReasonProbeFailSoft, note
		}
	}

	m.successes++
	m.fails = 0
	note := fmt.Sprintf("probe ok %d/%d", m.successes, m.th.OKAfterSuccesses)
	switch {
	case m.state == model.StateUnknown:
		return model.StateOK, model.ReasonProbeOK, "probe ok; recovered from unknown"
	case m.successes >= m.th.OKAfterSuccesses:
		return model.StateOK, model.ReasonProbeOK, note
	default:
		return m.state, model.ReasonProbeOKSoft, note
	}
}

func (m *Machine) reset() {
	m.fails = 0
	m.successes = 0
}

// State returns the current state.
func (m *Machine) State() model.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Counters returns the consecutive fail and success counts.
func (m *Machine) Counters() (fails, successes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fails, m.successes
}

// Status returns the current state with a copy of the retained history.
func (m *Machine) Status() model.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.Status{
		State:   m.state,
		Label:   m.state.Label(),
		History: m.history.Entries(),
	}
}
