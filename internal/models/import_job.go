package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// MaxErrorHistoryEntries bounds the error_history column so a job that is
// retried for weeks cannot grow its row without limit.
const MaxErrorHistoryEntries = 20

// ErrorEntry is one recorded failure of an import attempt.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Attempt   int       `json:"attempt"`
}

// ErrorHistory is the ordered JSONB list of failures for a job.
type ErrorHistory []ErrorEntry

func (h ErrorHistory) Value() (driver.Value, error) {
	if h == nil {
		return json.Marshal(ErrorHistory{})
	}
	return json.Marshal(h)
}

func (h *ErrorHistory) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var fieldBytes []byte
	switch v := value.(type) {
	case []byte:
		fieldBytes = v
	case string:
		fieldBytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ErrorHistory", value)
	}

	return json.Unmarshal(fieldBytes, h)
}

// Append adds an entry, dropping the oldest ones past the bound.
func (h ErrorHistory) Append(entry ErrorEntry) ErrorHistory {
	out := append(h, entry)
	if len(out) > MaxErrorHistoryEntries {
		out = out[len(out)-MaxErrorHistoryEntries:]
	}
	return out
}

// ImportStats summarizes a completed import, stored as JSONB on the job row.
type ImportStats struct {
	ReadingsImported int     `json:"readings_imported"`
	DurationSeconds  float64 `json:"duration_seconds"`
	StartDate        *string `json:"start_date,omitempty"`
	EndDate          *string `json:"end_date,omitempty"`
}

func (s *ImportStats) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *ImportStats) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var fieldBytes []byte
	switch v := value.(type) {
	case []byte:
		fieldBytes = v
	case string:
		fieldBytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ImportStats", value)
	}

	return json.Unmarshal(fieldBytes, s)
}

// ImportJob is one durable request to import a station's full period of
// record. At most one job per station may be pending or in progress.
type ImportJob struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StationID string    `gorm:"size:16;not null;index" json:"station_id"`
	Status    JobStatus `gorm:"size:20;not null;index;default:'pending'" json:"status"`
	Priority  int       `gorm:"not null;default:0" json:"priority"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	ErrorMessage *string      `json:"error_message"`
	ErrorHistory ErrorHistory `gorm:"type:jsonb" json:"error_history"`
	RetryCount   int          `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int          `gorm:"not null;default:3" json:"max_retries"`
	NextRetryAt  *time.Time   `gorm:"index" json:"next_retry_at"`

	Source       string         `json:"source"`
	GaugeSummary *GaugeSnapshot `gorm:"type:jsonb" json:"gauge_summary"`
	ImportStats  *ImportStats   `gorm:"type:jsonb" json:"import_stats"`
}

func (ImportJob) TableName() string {
	return "fopr_import_jobs"
}

// IsTerminal reports whether the job will never be claimed again.
func (j *ImportJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted:
		return true
	case JobStatusFailed:
		return j.RetryCount >= j.MaxRetries
	default:
		return false
	}
}
