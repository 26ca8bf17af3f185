package health

import (
	"sync"

	"uplink-monitor/pkg/model"
)

// History is a bounded ring of entries. Once full, the oldest entry is dropped
// on every insert. Reads return newest first.
type History struct {
	mu   sync.RWMutex
	buf  []model.HistoryEntry
	head int // index of the next write
	size int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]model.HistoryEntry, capacity)}
}

// Push inserts e as the newest entry.
func (h *History) Push(e model.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.head] = e
	h.head = (h.head + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// Entries returns a copy of the retained entries, newest first.
func (h *History) Entries() []model.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.HistoryEntry, 0, h.size)
	for i := 1; i <= h.size; i++ {
		idx := (h.head - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}
