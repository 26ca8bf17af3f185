package model

// Message types on the observer push channel.
const (
	MsgSnapshot    = "snapshot"
	MsgTick        = "tick"
	MsgStateChange = "state_change"
)

// Message is the envelope for every push channel frame. Fields are populated
// according to Type.
type Message struct {
	Type  string        `json:"type"`
	Label string        `json:"label,omitempty"`
	Data  *Status       `json:"data,omitempty"`
	State HealthState   `json:"state,omitempty"`
	Prev  HealthState   `json:"prev,omitempty"`
	Next  HealthState   `json:"next,omitempty"`
	Entry *HistoryEntry `json:"entry,omitempty"`
}

// SnapshotMessage wraps a full status.
func SnapshotMessage(st Status) Message {
	return Message{Type: MsgSnapshot, Data: &st, Label: st.Label}
}

// TickMessage is sent after every cycle.
func TickMessage(state HealthState, entry HistoryEntry) Message {
	return Message{Type: MsgTick, State: state, Label: state.Label(), Entry: &entry}
}

// StateChangeMessage is sent additionally when the state transitions.
func StateChangeMessage(prev, next HealthState, entry HistoryEntry) Message {
	return Message{Type: MsgStateChange, Prev: prev, Next: next, Label: next.Label(), Entry: &entry}
}
