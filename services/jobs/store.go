package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"finproof/models"
	"finproof/services/analysis"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store errors. ErrConflict is not a system failure: a caller that loses a
// claim race simply moves on to the next job.
var (
	ErrUnknownAnalysisType = errors.New("unknown analysis type")
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrNotFound            = errors.New("job not found")
	ErrConflict            = errors.New("job state conflict")
)

// Store is the durable record of jobs and their results. The database row,
// not process memory, is the authority on job state; every transition goes
// through a conditional UPDATE so concurrent workers cannot disagree.
type Store struct {
	db       *gorm.DB
	registry *analysis.Registry
}

// NewStore creates a job store backed by db, validating submissions
// against the module registry.
func NewStore(db *gorm.DB, registry *analysis.Registry) *Store {
	return &Store{db: db, registry: registry}
}

// Submit validates and persists a new pending job.
func (s *Store) Submit(symbol, analysisType string, params map[string]interface{}) (*models.Job, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidParameters)
	}

	module, ok := s.registry.Resolve(analysisType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalysisType, analysisType)
	}
	if err := module.ValidateParams(params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}

	job := &models.Job{
		Symbol:       symbol,
		AnalysisType: analysisType,
		Parameters:   datatypes.JSONMap(params),
		Status:       models.JobStatusPending,
	}
	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// SubmitBatch creates one pending job per analysis type for a symbol.
// Validation failures abort the batch before anything is persisted.
func (s *Store) SubmitBatch(symbol string, analysisTypes []string, params map[string]interface{}) ([]*models.Job, error) {
	for _, t := range analysisTypes {
		module, ok := s.registry.Resolve(t)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAnalysisType, t)
		}
		if err := module.ValidateParams(params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
	}

	jobsOut := make([]*models.Job, 0, len(analysisTypes))
	for _, t := range analysisTypes {
		job, err := s.Submit(symbol, t, params)
		if err != nil {
			return jobsOut, err
		}
		jobsOut = append(jobsOut, job)
	}
	return jobsOut, nil
}

// Get returns a job by id.
func (s *Store) Get(id uint) (*models.Job, error) {
	var job models.Job
	if err := s.db.First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return &job, nil
}

// GetResult returns the persisted result for a completed job.
func (s *Store) GetResult(jobID uint) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := s.db.Where("job_id = ?", jobID).First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	return &result, nil
}

// List returns jobs newest-first, optionally filtered by status.
func (s *Store) List(status string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Order("created_at DESC, id DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var out []models.Job
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return out, nil
}

// ListForSymbol returns a symbol's jobs newest-first.
func (s *Store) ListForSymbol(symbol string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.Job
	err := s.db.Where("symbol = ?", strings.ToUpper(symbol)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return out, nil
}

// NextPending returns the oldest pending job, or nil when the queue is
// empty. The returned job is not claimed yet.
func (s *Store) NextPending() (*models.Job, error) {
	var job models.Job
	err := s.db.Where("status = ?", models.JobStatusPending).
		Order("created_at ASC, id ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to poll pending jobs: %w", err)
	}
	return &job, nil
}

// Claim atomically transitions a job from pending to running. The
// conditional UPDATE guarantees exactly one winner under concurrent
// attempts; every loser sees ErrConflict.
func (s *Store) Claim(id uint) error {
	now := time.Now().UTC()
	res := s.db.Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.JobStatusRunning,
			"started_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to claim job %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Complete transitions a running job to completed and persists its result
// in the same transaction, so the result only ever becomes visible
// together with the terminal status.
func (s *Store) Complete(id uint, result *analysis.Result) error {
	if result == nil {
		return fmt.Errorf("job %d: completion requires a result", id)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return fmt.Errorf("job %d: result confidence %.4f outside [0,1]", id, result.Confidence)
	}

	now := time.Now().UTC()
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", id, models.JobStatusRunning).
			Updates(map[string]interface{}{
				"status":       models.JobStatusCompleted,
				"completed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete job %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		row := &models.AnalysisResult{
			JobID:      id,
			Summary:    result.Summary,
			Confidence: result.Confidence,
			ActionHint: result.ActionHint,
			Payload:    datatypes.JSONMap(result.Payload),
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to persist result for job %d: %w", id, err)
		}
		return nil
	})
}

// Fail transitions a running job to failed, preserving the exact failure
// message. The row is never deleted.
func (s *Store) Fail(id uint, message string) error {
	now := time.Now().UTC()
	res := s.db.Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":        models.JobStatusFailed,
			"error_message": message,
			"completed_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record failure for job %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Cancel removes a job from the queue before any worker claims it. Once a
// job is running it runs to completion or failure.
func (s *Store) Cancel(id uint) error {
	res := s.db.Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusPending).
		Update("status", models.JobStatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("failed to cancel job %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Counts returns the number of jobs per status.
func (s *Store) Counts() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.Model(&models.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// StuckRunning returns running jobs whose claim is older than maxAge.
// Used by the scheduler to fail work orphaned by a dead worker.
func (s *Store) StuckRunning(maxAge time.Duration) ([]models.Job, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	var out []models.Job
	err := s.db.Where("status = ? AND started_at < ?", models.JobStatusRunning, cutoff).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck jobs: %w", err)
	}
	return out, nil
}
