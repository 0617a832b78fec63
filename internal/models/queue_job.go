package models

import (
	"time"

	"gorm.io/gorm"
)

// MediaType classifies an intake file by the pipeline that handles it.
type MediaType string

const (
	// MediaTypeImage is a still image handled by the image pipeline.
	MediaTypeImage MediaType = "image"
	// MediaTypeVideo is a video handled by the HLS pipeline.
	MediaTypeVideo MediaType = "video"
)

// Valid returns true for a known media type.
func (m MediaType) Valid() bool {
	return m == MediaTypeImage || m == MediaTypeVideo
}

// QueueStatus represents the current status of a queue job.
type QueueStatus string

const (
	// QueueStatusQueued indicates the job is waiting to be picked up.
	QueueStatusQueued QueueStatus = "queued"
	// QueueStatusProcessing indicates the job is currently being processed.
	QueueStatusProcessing QueueStatus = "processing"
	// QueueStatusCompleted indicates the job finished successfully.
	QueueStatusCompleted QueueStatus = "completed"
	// QueueStatusFailed indicates the last attempt failed.
	QueueStatusFailed QueueStatus = "failed"
)

// Valid returns true for a known queue status.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusQueued, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed:
		return true
	}
	return false
}

// MaxErrorMessageLen bounds the stored error message. Callers truncate
// subprocess output to a tail of this size before recording it.
const MaxErrorMessageLen = 4096

// QueueJob is a row in the persistent processing queue. FilePath is unique:
// enqueueing the same path twice is a no-op, which makes the event watcher
// and the reconciler scan safe to overlap.
type QueueJob struct {
	BaseModel

	// FilePath is the absolute path of the intake file.
	FilePath string `gorm:"not null;size:1024;uniqueIndex" json:"file_path"`

	// FileType classifies which pipeline handles the file.
	FileType MediaType `gorm:"not null;size:10" json:"file_type"`

	// Status is the current queue state.
	Status QueueStatus `gorm:"not null;default:'queued';size:20;index" json:"status"`

	// Priority determines claim order (higher first), ties broken by QueuedAt.
	Priority int `gorm:"default:0;index" json:"priority"`

	// QueuedAt is when the job first entered the queue.
	QueuedAt time.Time `gorm:"not null;index" json:"queued_at"`

	// RetryCount is the number of failed attempts so far.
	RetryCount int `gorm:"default:0" json:"retry_count"`

	// MaxRetries is the attempt budget for this job.
	MaxRetries int `gorm:"default:3" json:"max_retries"`

	// ErrorMessage holds the bounded failure detail from the last attempt.
	ErrorMessage string `gorm:"size:4096" json:"error_message,omitempty"`

	// StartedAt is when the current/last attempt began.
	StartedAt *Time `json:"started_at,omitempty"`

	// CompletedAt is when the job last reached a terminal status. For failed
	// jobs it anchors the retry cool-down.
	CompletedAt *Time `json:"completed_at,omitempty"`

	// LockedBy is the worker identifier that claimed this job.
	LockedBy string `gorm:"size:64" json:"locked_by,omitempty"`
}

// TableName returns the table name for QueueJob.
func (QueueJob) TableName() string {
	return "processing_queue"
}

// IsTerminal returns true if the job reached completed or failed.
func (j *QueueJob) IsTerminal() bool {
	return j.Status == QueueStatusCompleted || j.Status == QueueStatusFailed
}

// CanRetry returns true if a failed job still has attempt budget left.
func (j *QueueJob) CanRetry() bool {
	return j.Status == QueueStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkProcessing transitions the job to processing for the given worker.
func (j *QueueJob) MarkProcessing(workerID string) {
	j.Status = QueueStatusProcessing
	now := Now()
	j.StartedAt = &now
	j.LockedBy = workerID
}

// MarkCompleted transitions the job to completed.
func (j *QueueJob) MarkCompleted() {
	j.Status = QueueStatusCompleted
	now := Now()
	j.CompletedAt = &now
	j.ErrorMessage = ""
	j.LockedBy = ""
}

// MarkFailed transitions the job to failed and records the bounded error.
// The retry count is not incremented here; that happens when the job is
// requeued so that attempts in flight do not consume budget twice.
func (j *QueueJob) MarkFailed(err error) {
	j.Status = QueueStatusFailed
	now := Now()
	j.CompletedAt = &now
	if err != nil {
		j.ErrorMessage = TruncateError(err.Error())
	}
	j.LockedBy = ""
}

// Requeue returns a failed job to queued with an incremented retry count,
// clearing attempt state.
func (j *QueueJob) Requeue() {
	j.RetryCount++
	j.Status = QueueStatusQueued
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.LockedBy = ""
}

// TruncateError keeps the tail of a message within MaxErrorMessageLen.
// The tail is kept because tool output puts the actionable detail last.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorMessageLen {
		return msg
	}
	return msg[len(msg)-MaxErrorMessageLen:]
}

// Validate performs basic validation on the queue job.
func (j *QueueJob) Validate() error {
	if j.FilePath == "" {
		return ErrFilePathRequired
	}
	if !j.FileType.Valid() {
		return ErrInvalidMediaType
	}
	if j.Status != "" && !j.Status.Valid() {
		return ErrInvalidQueueStatus
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job, generates its ULID and
// stamps QueuedAt.
func (j *QueueJob) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if j.Status == "" {
		j.Status = QueueStatusQueued
	}
	if j.QueuedAt.IsZero() {
		j.QueuedAt = Now()
	}
	return j.Validate()
}
