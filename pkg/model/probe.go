package model

// ProbeResult is the outcome of one active reachability check.
type ProbeResult struct {
	Success   bool   `json:"success"`
	TargetURL string `json:"url"`
	LatencyMs *int64 `json:"latencyMs"`
}
