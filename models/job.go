package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job lifecycle states. A job is created pending, claimed into running by
// exactly one executor worker, and ends in completed or failed. There is no
// transition out of a terminal state; cancelled applies only before a claim.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Job represents one request to run an analysis module against a symbol.
// Jobs are never deleted; the rows form the audit trail of every analysis
// the system ever ran.
type Job struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Symbol       string            `gorm:"index;size:20" json:"symbol"`
	AnalysisType string            `gorm:"index;size:50" json:"analysis_type"`
	Parameters   datatypes.JSONMap `json:"parameters"`
	Status       string            `gorm:"index;size:20" json:"status"`
	ErrorMessage string            `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job can never change state again.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// AnalysisResult is the output of a completed job. Exactly one row per
// completed job, written in the same transaction as the completed
// transition, immutable afterwards.
type AnalysisResult struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	JobID      uint              `gorm:"uniqueIndex" json:"job_id"`
	Summary    string            `gorm:"type:text" json:"summary"`
	Confidence float64           `json:"confidence"`
	ActionHint string            `gorm:"size:10" json:"action_hint,omitempty"`
	Payload    datatypes.JSONMap `json:"payload,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// MigrateJobModels runs database migrations for job-related models
func MigrateJobModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Job{},
		&AnalysisResult{},
	)
}
