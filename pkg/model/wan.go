package model

// WanVerdict is the reconciled WAN link status for one cycle. Up is nil when unknown.
type WanVerdict struct {
	Up     *bool          `json:"up"`
	Detail map[string]any `json:"sourceDetail"`
}

// Known reports whether the verdict resolved to up or down.
func (v WanVerdict) Known() bool {
	return v.Up != nil
}

// Gateway is the identity snapshot of the monitored router device.
type Gateway struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
	Type  string `json:"type"`
}

// WanInterface describes one WAN uplink as reported by the controller topology.
type WanInterface struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Port     string `json:"port,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	LoadRole string `json:"loadBalance,omitempty"`
}
