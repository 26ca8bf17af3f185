package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"uplink-monitor/pkg/model"
)

// auditEvent is the mysql row for one audit record.
type auditEvent struct {
	ID      uint      `gorm:"primaryKey"`
	TS      time.Time `gorm:"index"`
	Kind    string    `gorm:"size:32"`
	Prev    string    `gorm:"size:16"`
	Next    string    `gorm:"size:16"`
	Payload string    `gorm:"type:text"`
}

func (auditEvent) TableName() string { return "audit_events" }

// MySQLSink mirrors audit records into mysql through gorm.
type MySQLSink struct {
	db *gorm.DB
}

func OpenMySQL(dsn string) (*MySQLSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql mirror requires a dsn")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	if err := db.AutoMigrate(&auditEvent{}); err != nil {
		return nil, fmt.Errorf("mysql migrate: %w", err)
	}
	return &MySQLSink{db: db}, nil
}

func (s *MySQLSink) Append(ctx context.Context, rec model.AuditRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	row := auditEvent{
		TS:      rec.Timestamp,
		Kind:    rec.Kind,
		Prev:    string(rec.Prev),
		Next:    string(rec.Next),
		Payload: string(payload),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *MySQLSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
