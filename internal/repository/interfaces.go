// Package repository defines data access interfaces for mediavault entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/mediavault/mediavault/internal/models"
)

// QueueRepository defines operations for the persistent processing queue.
type QueueRepository interface {
	// Enqueue inserts a queued job for the given path. Enqueueing a path
	// that is already in the queue is a no-op.
	Enqueue(ctx context.Context, filePath string, fileType models.MediaType) error
	// GetByID retrieves a job by ID. Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.QueueJob, error)
	// GetByFilePath retrieves a job by its unique file path. Returns nil when not found.
	GetByFilePath(ctx context.Context, filePath string) (*models.QueueJob, error)
	// GetPending retrieves up to limit queued jobs with retry budget left,
	// ordered by priority (descending) then queue time (ascending).
	GetPending(ctx context.Context, limit int) ([]*models.QueueJob, error)
	// GetRetryable retrieves up to limit failed jobs with retry budget left
	// whose last failure is at least cooldown old, in the same order as
	// GetPending.
	GetRetryable(ctx context.Context, limit int, cooldown time.Duration) ([]*models.QueueJob, error)
	// Claim atomically transitions a queued or failed job to processing on
	// behalf of workerID. Returns models.ErrJobNotClaimable when another
	// worker got there first or the job moved on.
	Claim(ctx context.Context, id models.ULID, workerID string) error
	// MarkCompleted transitions a job to completed.
	MarkCompleted(ctx context.Context, id models.ULID) error
	// MarkDuplicate transitions a job to completed, recording the catalog
	// record the intake file duplicated.
	MarkDuplicate(ctx context.Context, id models.ULID, existingID string) error
	// MarkFailed transitions a job to failed, recording the bounded error message.
	MarkFailed(ctx context.Context, id models.ULID, errMsg string) error
	// Requeue returns a failed job to queued with an incremented retry count.
	Requeue(ctx context.Context, id models.ULID) error
	// ExhaustRetries pins a failed job's retry count at its budget so the
	// retry scan no longer selects it.
	ExhaustRetries(ctx context.Context, id models.ULID) error
	// RequeueStale returns processing jobs started before the given time to
	// queued. Used at startup to recover jobs orphaned by a crash.
	RequeueStale(ctx context.Context, olderThan time.Time) (int64, error)
	// DeleteTerminal deletes completed and failed jobs whose completion is
	// older than the given time. Returns the number of rows removed.
	DeleteTerminal(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns the number of jobs in the given status.
	CountByStatus(ctx context.Context, status models.QueueStatus) (int64, error)
}

// KeyRepository defines operations for encryption key persistence.
type KeyRepository interface {
	// GetActive retrieves the active encryption key.
	// Returns models.ErrNoActiveKey when none exists.
	GetActive(ctx context.Context) (*models.EncryptionKey, error)
	// GetByID retrieves a key by ID. Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.EncryptionKey, error)
	// GetOrCreateActive retrieves the active key, provisioning a fresh one
	// when the table has no active row.
	GetOrCreateActive(ctx context.Context) (*models.EncryptionKey, error)
	// Deactivate clears the active flag on the given key.
	Deactivate(ctx context.Context, id models.ULID) error
}

// MediaRepository defines operations for the processed media catalog.
type MediaRepository interface {
	// Create inserts a catalog record for a fully processed asset.
	Create(ctx context.Context, file *models.MediaFile) error
	// GetByID retrieves a media file by its 16-hex identifier. Returns nil when not found.
	GetByID(ctx context.Context, id string) (*models.MediaFile, error)
	// FindByHash retrieves a media file by content hash. Returns nil when
	// no duplicate exists.
	FindByHash(ctx context.Context, fileHash string) (*models.MediaFile, error)
	// Count returns the total number of catalog records.
	Count(ctx context.Context) (int64, error)
}
