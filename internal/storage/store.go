package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"devpipe/internal/logger"
	"devpipe/pkg/model"
)

// LogRecord is the persisted form of a log event, kept for post-hoc
// querying alongside the JSONL file.
type LogRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Session   string    `gorm:"index"`
	Type      string    `gorm:"index"`
	Timestamp time.Time `gorm:"index"`
	Data      string
}

// Store persists log events into sqlite.
type Store struct {
	db *gorm.DB
	// SessionFunc supplies the current session id at write time.
	SessionFunc func() string
	log         logger.Logger
}

// Open opens (or creates) the sqlite store at dsn and migrates the
// schema. tablePrefix follows the configured naming convention.
func Open(dsn, tablePrefix string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: tablePrefix},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&LogRecord{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{db: db, log: l}, nil
}

// Write persists one event. Failures are logged and swallowed: the
// store is a best-effort secondary sink and must never fail the core.
func (s *Store) Write(ev model.LogEvent) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		s.log.Err(err, "event store marshal failed", "type", string(ev.Type))
		return
	}
	rec := LogRecord{
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		Data:      string(data),
	}
	if s.SessionFunc != nil {
		rec.Session = s.SessionFunc()
	}
	if err := s.db.Create(&rec).Error; err != nil {
		s.log.Err(err, "event store write failed", "type", string(ev.Type))
	}
}

// Recent returns the newest records, optionally filtered by type.
func (s *Store) Recent(limit int, eventType string) ([]LogRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.Order("id desc").Limit(limit)
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	var out []LogRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("storage: query: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
