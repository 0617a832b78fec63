package repository

import (
	"context"
	"testing"
	"time"

	"github.com/mediavault/mediavault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRepo_Enqueue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	err := repo.Enqueue(ctx, "/data/imports/a.jpg", models.MediaTypeImage)
	require.NoError(t, err)

	job, err := repo.GetByFilePath(ctx, "/data/imports/a.jpg")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.QueueStatusQueued, job.Status)
	assert.Equal(t, models.MediaTypeImage, job.FileType)
	assert.False(t, job.QueuedAt.IsZero())
}

func TestQueueRepo_Enqueue_DuplicatePathIsNoop(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/data/imports/a.jpg", models.MediaTypeImage))

	first, err := repo.GetByFilePath(ctx, "/data/imports/a.jpg")
	require.NoError(t, err)

	// Second enqueue of the same path must not error or create a second row.
	require.NoError(t, repo.Enqueue(ctx, "/data/imports/a.jpg", models.MediaTypeImage))

	var count int64
	require.NoError(t, db.Model(&models.QueueJob{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	second, err := repo.GetByFilePath(ctx, "/data/imports/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestQueueRepo_GetPending_Ordering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	rows := []models.QueueJob{
		{FilePath: "/i/low-old.jpg", FileType: models.MediaTypeImage, Status: models.QueueStatusQueued, Priority: 0, QueuedAt: base},
		{FilePath: "/i/low-new.jpg", FileType: models.MediaTypeImage, Status: models.QueueStatusQueued, Priority: 0, QueuedAt: base.Add(time.Minute)},
		{FilePath: "/i/high.jpg", FileType: models.MediaTypeImage, Status: models.QueueStatusQueued, Priority: 5, QueuedAt: base.Add(2 * time.Minute)},
	}
	for i := range rows {
		rows[i].MaxRetries = 3
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	jobs, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// Highest priority first, then oldest queue time.
	assert.Equal(t, "/i/high.jpg", jobs[0].FilePath)
	assert.Equal(t, "/i/low-old.jpg", jobs[1].FilePath)
	assert.Equal(t, "/i/low-new.jpg", jobs[2].FilePath)
}

func TestQueueRepo_GetPending_SkipsExhaustedRetries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	exhausted := models.QueueJob{
		FilePath: "/i/exhausted.jpg", FileType: models.MediaTypeImage,
		Status: models.QueueStatusQueued, RetryCount: 3, MaxRetries: 3,
	}
	require.NoError(t, db.Create(&exhausted).Error)

	jobs, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestQueueRepo_GetPending_Limit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		job := models.QueueJob{
			FilePath: "/i/file" + string(rune('a'+i)) + ".jpg", FileType: models.MediaTypeImage,
			Status: models.QueueStatusQueued, MaxRetries: 3,
		}
		require.NoError(t, db.Create(&job).Error)
	}

	jobs, err := repo.GetPending(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, jobs, 5)
}

func TestQueueRepo_GetRetryable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	old := time.Now().Add(-10 * time.Minute)
	recent := time.Now().Add(-time.Minute)

	cooled := models.QueueJob{
		FilePath: "/i/cooled.jpg", FileType: models.MediaTypeImage,
		Status: models.QueueStatusFailed, RetryCount: 1, MaxRetries: 3,
		CompletedAt: &old,
	}
	hot := models.QueueJob{
		FilePath: "/i/hot.jpg", FileType: models.MediaTypeImage,
		Status: models.QueueStatusFailed, RetryCount: 1, MaxRetries: 3,
		CompletedAt: &recent,
	}
	spent := models.QueueJob{
		FilePath: "/i/spent.jpg", FileType: models.MediaTypeImage,
		Status: models.QueueStatusFailed, RetryCount: 3, MaxRetries: 3,
		CompletedAt: &old,
	}
	for _, j := range []*models.QueueJob{&cooled, &hot, &spent} {
		require.NoError(t, db.Create(j).Error)
	}

	jobs, err := repo.GetRetryable(ctx, 10, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "/i/cooled.jpg", jobs[0].FilePath)
}

func TestQueueRepo_Claim(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/a.jpg", models.MediaTypeImage))
	job, err := repo.GetByFilePath(ctx, "/i/a.jpg")
	require.NoError(t, err)

	err = repo.Claim(ctx, job.ID, "worker-1")
	require.NoError(t, err)

	claimed, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusProcessing, claimed.Status)
	assert.Equal(t, "worker-1", claimed.LockedBy)
	assert.NotNil(t, claimed.StartedAt)

	// A second claim must lose the race.
	err = repo.Claim(ctx, job.ID, "worker-2")
	assert.ErrorIs(t, err, models.ErrJobNotClaimable)
}

func TestQueueRepo_MarkCompleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/a.jpg", models.MediaTypeImage))
	job, _ := repo.GetByFilePath(ctx, "/i/a.jpg")
	require.NoError(t, repo.Claim(ctx, job.ID, "worker-1"))

	require.NoError(t, repo.MarkCompleted(ctx, job.ID))

	done, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.LockedBy)
}

func TestQueueRepo_MarkFailed_TruncatesMessage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/a.jpg", models.MediaTypeImage))
	job, _ := repo.GetByFilePath(ctx, "/i/a.jpg")

	long := make([]byte, models.MaxErrorMessageLen+100)
	for i := range long {
		long[i] = 'e'
	}
	require.NoError(t, repo.MarkFailed(ctx, job.ID, string(long)))

	failed, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, failed.Status)
	assert.Len(t, failed.ErrorMessage, models.MaxErrorMessageLen)
}

func TestQueueRepo_Requeue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/a.jpg", models.MediaTypeImage))
	job, _ := repo.GetByFilePath(ctx, "/i/a.jpg")
	require.NoError(t, repo.MarkFailed(ctx, job.ID, "boom"))

	require.NoError(t, repo.Requeue(ctx, job.ID))

	requeued, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusQueued, requeued.Status)
	assert.Equal(t, 1, requeued.RetryCount)
	assert.Empty(t, requeued.ErrorMessage)
	assert.Nil(t, requeued.StartedAt)
	assert.Nil(t, requeued.CompletedAt)
}

func TestQueueRepo_Requeue_OnlyFailedJobs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/a.jpg", models.MediaTypeImage))
	job, _ := repo.GetByFilePath(ctx, "/i/a.jpg")

	err := repo.Requeue(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestQueueRepo_RequeueStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	staleStart := time.Now().Add(-2 * time.Hour)
	freshStart := time.Now().Add(-time.Minute)

	stale := models.QueueJob{
		FilePath: "/i/stale.jpg", FileType: models.MediaTypeImage,
		Status: models.QueueStatusProcessing, StartedAt: &staleStart, LockedBy: "dead-worker",
	}
	fresh := models.QueueJob{
		FilePath: "/i/fresh.jpg", FileType: models.MediaTypeImage,
		Status: models.QueueStatusProcessing, StartedAt: &freshStart, LockedBy: "live-worker",
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&fresh).Error)

	n, err := repo.RequeueStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recovered, _ := repo.GetByID(ctx, stale.ID)
	assert.Equal(t, models.QueueStatusQueued, recovered.Status)
	assert.Empty(t, recovered.LockedBy)

	untouched, _ := repo.GetByID(ctx, fresh.ID)
	assert.Equal(t, models.QueueStatusProcessing, untouched.Status)
}

func TestQueueRepo_DeleteTerminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	old := time.Now().Add(-8 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	rows := []models.QueueJob{
		{FilePath: "/i/old-done.jpg", FileType: models.MediaTypeImage, Status: models.QueueStatusCompleted, CompletedAt: &old},
		{FilePath: "/i/old-failed.jpg", FileType: models.MediaTypeImage, Status: models.QueueStatusFailed, CompletedAt: &old},
		{FilePath: "/i/new-done.jpg", FileType: models.MediaTypeImage, Status: models.QueueStatusCompleted, CompletedAt: &recent},
		{FilePath: "/i/queued.jpg", FileType: models.MediaTypeImage, Status: models.QueueStatusQueued},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	n, err := repo.DeleteTerminal(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var count int64
	require.NoError(t, db.Model(&models.QueueJob{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestQueueRepo_CountByStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/a.jpg", models.MediaTypeImage))
	require.NoError(t, repo.Enqueue(ctx, "/i/b.jpg", models.MediaTypeImage))

	n, err := repo.CountByStatus(ctx, models.QueueStatusQueued)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountByStatus(ctx, models.QueueStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestQueueRepo_MarkDuplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/dup.jpg", models.MediaTypeImage))
	job, err := repo.GetByFilePath(ctx, "/i/dup.jpg")
	require.NoError(t, err)

	require.NoError(t, repo.MarkDuplicate(ctx, job.ID, "abc123def4567890"))

	updated, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, updated.Status)
	assert.Equal(t, "Duplicate of existing file ID: abc123def4567890", updated.ErrorMessage)
	require.NotNil(t, updated.CompletedAt)
}

func TestQueueRepo_MarkDuplicate_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)

	err := repo.MarkDuplicate(context.Background(), models.NewULID(), "abc123def4567890")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestQueueRepo_ExhaustRetries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/hopeless.jpg", models.MediaTypeImage))
	job, err := repo.GetByFilePath(ctx, "/i/hopeless.jpg")
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, job.ID, "boom"))
	require.NoError(t, repo.ExhaustRetries(ctx, job.ID))

	updated, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.MaxRetries, updated.RetryCount)

	// The retry scan no longer selects it.
	retryable, err := repo.GetRetryable(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, retryable)
}

func TestQueueRepo_Lifecycle_QueuedToCompleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/lifecycle.jpg", models.MediaTypeImage))
	job, err := repo.GetByFilePath(ctx, "/i/lifecycle.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusQueued, job.Status)

	// Every transition is a partial update; none may require fields it
	// does not itself set.
	require.NoError(t, repo.Claim(ctx, job.ID, "worker-1"))
	processing, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusProcessing, processing.Status)
	require.NotNil(t, processing.StartedAt)
	assert.Nil(t, processing.CompletedAt)

	require.NoError(t, repo.MarkCompleted(ctx, job.ID))
	done, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "/i/lifecycle.jpg", done.FilePath)
	assert.Equal(t, models.MediaTypeImage, done.FileType)
}

func TestQueueRepo_ExhaustRetries_OnlyFailed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "/i/queued.jpg", models.MediaTypeImage))
	job, err := repo.GetByFilePath(ctx, "/i/queued.jpg")
	require.NoError(t, err)

	err = repo.ExhaustRetries(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}
