package store

import (
	"context"
	"sync"

	"uplink-monitor/pkg/model"
)

// MemoryLog keeps audit records in memory. Intended for dev/demo and tests.
type MemoryLog struct {
	mu      sync.RWMutex
	records []model.AuditRecord
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, rec model.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryLog) Page(offset, limit int) ([]model.AuditRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pageNewestFirst(m.records, offset, limit), len(m.records), nil
}

// Records returns all records, oldest first.
func (m *MemoryLog) Records() []model.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.AuditRecord(nil), m.records...)
}

func (m *MemoryLog) Close() error { return nil }
