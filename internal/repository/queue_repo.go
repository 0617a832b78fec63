package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mediavault/mediavault/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// queueRepo implements QueueRepository using GORM.
type queueRepo struct {
	db *gorm.DB
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(db *gorm.DB) *queueRepo {
	return &queueRepo{db: db}
}

var _ QueueRepository = (*queueRepo)(nil)

// Enqueue inserts a queued job, ignoring conflicts on the unique file path.
func (r *queueRepo) Enqueue(ctx context.Context, filePath string, fileType models.MediaType) error {
	job := &models.QueueJob{
		FilePath: filePath,
		FileType: fileType,
		Status:   models.QueueStatusQueued,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_path"}},
			DoNothing: true,
		}).
		Create(job).Error
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", filePath, err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *queueRepo) GetByID(ctx context.Context, id models.ULID) (*models.QueueJob, error) {
	var job models.QueueJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetByFilePath retrieves a job by its unique file path.
func (r *queueRepo) GetByFilePath(ctx context.Context, filePath string) (*models.QueueJob, error) {
	var job models.QueueJob
	if err := r.db.WithContext(ctx).Where("file_path = ?", filePath).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by file path: %w", err)
	}
	return &job, nil
}

// GetPending retrieves queued jobs with retry budget left.
func (r *queueRepo) GetPending(ctx context.Context, limit int) ([]*models.QueueJob, error) {
	var jobs []*models.QueueJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < max_retries", models.QueueStatusQueued).
		Order("priority DESC, queued_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting pending jobs: %w", err)
	}
	return jobs, nil
}

// GetRetryable retrieves failed jobs whose cool-down has elapsed.
func (r *queueRepo) GetRetryable(ctx context.Context, limit int, cooldown time.Duration) ([]*models.QueueJob, error) {
	cutoff := time.Now().Add(-cooldown)

	var jobs []*models.QueueJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < max_retries", models.QueueStatusFailed).
		Where("completed_at IS NULL OR completed_at < ?", cutoff).
		Order("priority DESC, queued_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting retryable jobs: %w", err)
	}
	return jobs, nil
}

// Claim atomically transitions a queued or failed job to processing.
// A conditional UPDATE with a rows-affected check works on every supported
// driver, unlike FOR UPDATE SKIP LOCKED.
func (r *queueRepo) Claim(ctx context.Context, id models.ULID, workerID string) error {
	now := models.Now()
	result := r.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("id = ? AND status IN (?, ?)", id, models.QueueStatusQueued, models.QueueStatusFailed).
		Updates(map[string]any{
			"status":     models.QueueStatusProcessing,
			"started_at": now,
			"locked_by":  workerID,
		})
	if result.Error != nil {
		return fmt.Errorf("claiming job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotClaimable
	}
	return nil
}

// MarkCompleted transitions a job to completed.
func (r *queueRepo) MarkCompleted(ctx context.Context, id models.ULID) error {
	now := models.Now()
	result := r.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.QueueStatusCompleted,
			"completed_at":  now,
			"error_message": "",
			"locked_by":     "",
		})
	if result.Error != nil {
		return fmt.Errorf("marking job completed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// MarkDuplicate transitions a job to completed, recording which catalog
// record the intake file duplicated.
func (r *queueRepo) MarkDuplicate(ctx context.Context, id models.ULID, existingID string) error {
	now := models.Now()
	result := r.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.QueueStatusCompleted,
			"completed_at":  now,
			"error_message": fmt.Sprintf("Duplicate of existing file ID: %s", existingID),
			"locked_by":     "",
		})
	if result.Error != nil {
		return fmt.Errorf("marking job duplicate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// MarkFailed transitions a job to failed with the bounded error message.
func (r *queueRepo) MarkFailed(ctx context.Context, id models.ULID, errMsg string) error {
	now := models.Now()
	result := r.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.QueueStatusFailed,
			"completed_at":  now,
			"error_message": models.TruncateError(errMsg),
			"locked_by":     "",
		})
	if result.Error != nil {
		return fmt.Errorf("marking job failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// Requeue returns a failed job to queued with an incremented retry count.
func (r *queueRepo) Requeue(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("id = ? AND status = ?", id, models.QueueStatusFailed).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"status":        models.QueueStatusQueued,
			"error_message": "",
			"started_at":    nil,
			"completed_at":  nil,
			"locked_by":     "",
		})
	if result.Error != nil {
		return fmt.Errorf("requeueing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// ExhaustRetries pins a failed job's retry count at its budget, making the
// failure terminal.
func (r *queueRepo) ExhaustRetries(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("id = ? AND status = ?", id, models.QueueStatusFailed).
		Update("retry_count", gorm.Expr("max_retries"))
	if result.Error != nil {
		return fmt.Errorf("exhausting retries: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// RequeueStale returns orphaned processing jobs to queued.
func (r *queueRepo) RequeueStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("status = ? AND started_at < ?", models.QueueStatusProcessing, olderThan).
		Updates(map[string]any{
			"status":     models.QueueStatusQueued,
			"started_at": nil,
			"locked_by":  "",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("requeueing stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteTerminal deletes old completed and failed jobs.
func (r *queueRepo) DeleteTerminal(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN (?, ?) AND completed_at < ?",
			models.QueueStatusCompleted, models.QueueStatusFailed, before).
		Delete(&models.QueueJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting terminal jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountByStatus returns the number of jobs in the given status.
func (r *queueRepo) CountByStatus(ctx context.Context, status models.QueueStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("status = ?", status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting jobs by status: %w", err)
	}
	return count, nil
}
