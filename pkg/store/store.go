// Package store keeps the append-only audit trail of internet outages.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
)

// Sink accepts audit records.
type Sink interface {
	Append(ctx context.Context, rec model.AuditRecord) error
	Close() error
}

// Reader pages through audit records, newest first. total is the number of
// records available.
type Reader interface {
	Page(offset, limit int) (records []model.AuditRecord, total int, err error)
}

// Config selects the audit log location and optional database mirror.
type Config struct {
	Path   string `yaml:"path"`
	Mirror string `yaml:"mirror"` // "", sqlite or mysql
	DSN    string `yaml:"dsn"`
}

// AuditLog writes to the JSON lines file and, when configured, mirrors every
// record into a database. Mirror failures are logged and never fail Append.
type AuditLog struct {
	*FileLog
	mirror Sink
	log    *zap.Logger
}

func Open(cfg Config, log *zap.Logger) (*AuditLog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	file, err := OpenFile(cfg.Path)
	if err != nil {
		return nil, err
	}
	a := &AuditLog{FileLog: file, log: log.Named("audit")}
	switch cfg.Mirror {
	case "":
	case "sqlite":
		if a.mirror, err = OpenSQLite(cfg.DSN); err != nil {
			return nil, err
		}
	case "mysql":
		if a.mirror, err = OpenMySQL(cfg.DSN); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported audit mirror: %s", cfg.Mirror)
	}
	return a, nil
}

func (a *AuditLog) Append(ctx context.Context, rec model.AuditRecord) error {
	if err := a.FileLog.Append(ctx, rec); err != nil {
		return err
	}
	if a.mirror != nil {
		if err := a.mirror.Append(ctx, rec); err != nil {
			a.log.Warn("audit mirror append failed", zap.Error(err))
		}
	}
	return nil
}

func (a *AuditLog) Close() error {
	if a.mirror != nil {
		return a.mirror.Close()
	}
	return nil
}
