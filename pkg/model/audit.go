package model

import "time"

// Audit record kinds.
const (
	KindInternetDown     = "INTERNET_DOWN"
	KindInternetRestored = "INTERNET_RESTORED"
)

// AuditRecord is one line of the append-only event log.
type AuditRecord struct {
	Timestamp time.Time   `json:"ts"`
	Kind      string      `json:"kind"`
	Prev      HealthState `json:"prev"`
	Next      HealthState `json:"next"`
	Probe     ProbeResult `json:"probe"`
	WanUp     *bool       `json:"wanUp"`
	Gateway   *Gateway    `json:"gateway"`
	Note      string      `json:"note,omitempty"`
}

// AuditKind returns the audit kind for a transition, or "" when the transition
// is not audited. Only entering DOWN and DOWN->OK are recorded.
func AuditKind(prev, next HealthState) string {
	switch {
	case next == StateDown && prev != StateDown:
		return KindInternetDown
	case prev == StateDown && next == StateOK:
		return KindInternetRestored
	default:
		return ""
	}
}
