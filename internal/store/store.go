// Package store persists snippet execution history in an embedded database.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stagebox/internal/executor"
)

// ExecutionRecord is one routed snippet execution.
type ExecutionRecord struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Language     string    `gorm:"index" json:"language"`
	Mode         string    `json:"mode"`
	ExecutorUsed string    `json:"executor_used"`
	Success      bool      `json:"success"`
	ExitCode     int       `json:"exit_code"`
	DurationMs   int64     `json:"duration_ms"`
	Stdout       string    `json:"stdout"`
	Stderr       string    `json:"stderr"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// maxCapturedOutput truncates stored stdout/stderr so one noisy run cannot
// bloat the history database.
const maxCapturedOutput = 64 * 1024

// Store wraps the history database.
type Store struct {
	db *gorm.DB
}

// New opens (or creates) the embedded database and migrates the schema.
func New(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.AutoMigrate(&ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record persists one execution outcome.
func (s *Store) Record(req executor.Request, res executor.Result) error {
	rec := ExecutionRecord{
		ID:           uuid.New().String(),
		Language:     req.Language,
		Mode:         string(req.Mode),
		ExecutorUsed: res.ExecutorUsed,
		Success:      res.Success,
		ExitCode:     res.ExitCode,
		DurationMs:   res.DurationMs,
		Stdout:       truncate(res.Stdout),
		Stderr:       truncate(res.Stderr),
		Error:        res.Error,
	}
	return s.db.Create(&rec).Error
}

// Recent returns the newest executions, most recent first.
func (s *Store) Recent(limit int) ([]ExecutionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []ExecutionRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

func truncate(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput]
}
