package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"uplink-monitor/pkg/model"
)

// FileLog is a JSON lines file, one record per line, only ever appended to.
type FileLog struct {
	mu   sync.Mutex
	path string
}

func OpenFile(path string) (*FileLog, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	_ = f.Close()
	return &FileLog{path: path}, nil
}

// Path is the file location, used for downloads.
func (l *FileLog) Path() string { return l.path }

func (l *FileLog) Append(_ context.Context, rec model.AuditRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Page returns records newest first. Lines that fail to parse are skipped.
func (l *FileLog) Page(offset, limit int) ([]model.AuditRecord, int, error) {
	l.mu.Lock()
	all, err := l.readAll()
	l.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}
	return pageNewestFirst(all, offset, limit), len(all), nil
}

func (l *FileLog) readAll() ([]model.AuditRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	var out []model.AuditRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		var rec model.AuditRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return out, nil
}

// pageNewestFirst slices records stored oldest first.
func pageNewestFirst(all []model.AuditRecord, offset, limit int) []model.AuditRecord {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 50
	}
	out := []model.AuditRecord{}
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out
}
