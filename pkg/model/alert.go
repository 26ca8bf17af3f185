package model

import "time"

// AlertPayload is posted to the webhook once per state transition.
type AlertPayload struct {
	Text    string       `json:"text"`
	TS      time.Time    `json:"ts"`
	State   HealthState  `json:"state"`
	Details AlertDetails `json:"details"`
}

type AlertDetails struct {
	BaseURL   string         `json:"baseUrl"`
	Site      string         `json:"site"`
	Mode      string         `json:"mode"`
	Probe     ProbeResult    `json:"probe"`
	WanUp     *bool          `json:"wanUp"`
	WanHealth map[string]any `json:"wanHealth,omitempty"`
	Gateway   *Gateway       `json:"gatewaySnapshot"`
}
