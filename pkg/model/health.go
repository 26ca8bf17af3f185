package model

import "time"

// HealthState is the stable verdict about the internet uplink.
type HealthState string

const (
	StateOK       HealthState = "OK"
	StateDegraded HealthState = "DEGRADED"
	StateDown     HealthState = "DOWN"
	StateUnknown  HealthState = "UNKNOWN"
)

// Label returns the human readable text shown next to a state.
func (s HealthState) Label() string {
	switch s {
	case StateOK:
		return "Internet OK"
	case StateDegraded:
		return "Internet degraded"
	case StateDown:
		return "Internet down"
	default:
		return "Unknown"
	}
}

// Reason codes attached to every history entry.
const (
	ReasonWanLinkDown     = "WAN_LINK_DOWN"
	ReasonProbeDown       = "PROBE_DOWN"
	ReasonProbeDegraded   = "PROBE_DEGRADED"
	ReasonProbeFailSoft   = "PROBE_FAIL_SOFT"
	ReasonProbeOK         = "PROBE_OK"
	ReasonProbeOKSoft     = "PROBE_OK_SOFT"
	ReasonControllerError = "CONTROLLER_ERROR"
)

// HistoryEntry is one cycle's record on the timeline. Never mutated after creation.
type HistoryEntry struct {
	Timestamp        time.Time      `json:"ts"`
	State            HealthState    `json:"state"`
	WanUp            *bool          `json:"wanUp"`
	WanVerdictDetail map[string]any `json:"wanVerdict,omitempty"`
	Probe            ProbeResult    `json:"probe"`
	Gateway          *Gateway       `json:"gateway,omitempty"`
	Reason           string         `json:"reason"`
	Note             string         `json:"note,omitempty"`
	ControllerError  string         `json:"controllerError,omitempty"`
}

// Status is the read model served to dashboards and snapshot observers.
type Status struct {
	State   HealthState    `json:"state"`
	Label   string         `json:"label"`
	History []HistoryEntry `json:"history"`
}

// Bool returns a pointer to b, used for tri-state wanUp values.
func Bool(b bool) *bool {
	return &b
}
