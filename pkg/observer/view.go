package observer

import (
	"sync"
	"time"

	"uplink-monitor/pkg/model"
)

// noLatency stands in for a missing probe latency in the dedup key.
const noLatency = int64(-1)

type entryKey struct {
	ts      int64
	state   model.HealthState
	latency int64
}

func keyOf(e model.HistoryEntry) entryKey {
	k := entryKey{ts: e.Timestamp.UnixMilli(), state: e.State, latency: noLatency}
	if e.Probe.LatencyMs != nil {
		k.latency = *e.Probe.LatencyMs
	}
	return k
}

// View is the observer's local copy of the timeline, newest first.
type View struct {
	mu         sync.Mutex
	cap        int
	state      model.HealthState
	history    []model.HistoryEntry
	lastUpdate time.Time
	stale      bool
}

func NewView(capacity int) *View {
	if capacity < 1 {
		capacity = 1
	}
	return &View{cap: capacity, state: model.StateUnknown}
}

// ReplaceSnapshot discards local history and adopts st.
func (v *View) ReplaceSnapshot(st model.Status, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	h := st.History
	if len(h) > v.cap {
		h = h[:v.cap]
	}
	v.history = append([]model.HistoryEntry(nil), h...)
	v.state = st.State
	v.touch(now)
}

// Merge prepends e unless it duplicates the current head. It reports whether
// the entry was added.
func (v *View) Merge(state model.HealthState, e model.HistoryEntry, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
	v.touch(now)
	if len(v.history) > 0 && keyOf(v.history[0]) == keyOf(e) {
		return false
	}
	v.history = append(v.history, model.HistoryEntry{})
	copy(v.history[1:], v.history)
	v.history[0] = e
	if len(v.history) > v.cap {
		v.history = v.history[:v.cap]
	}
	return true
}

func (v *View) touch(now time.Time) {
	v.lastUpdate = now
}

// clearStale drops the stale flag and reports whether it was set.
func (v *View) clearStale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	was := v.stale
	v.stale = false
	return was
}

// checkStale flags the view once nothing arrived for longer than after. It
// reports whether the flag changed.
func (v *View) checkStale(now time.Time, after time.Duration) (stale, changed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := !v.lastUpdate.IsZero() && now.Sub(v.lastUpdate) > after
	changed = s != v.stale
	v.stale = s
	return s, changed
}

func (v *View) State() model.HealthState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// History returns a copy, newest first.
func (v *View) History() []model.HistoryEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.HistoryEntry(nil), v.history...)
}

func (v *View) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}

func (v *View) LastUpdate() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUpdate
}
