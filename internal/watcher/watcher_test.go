package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/models"
	"github.com/mediavault/mediavault/internal/repository"
)

func setupWatcher(t *testing.T) (*Watcher, repository.QueueRepository, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.QueueJob{}))

	queue := repository.NewQueueRepository(db)
	importDir := t.TempDir()

	cfg := config.WatcherConfig{
		ReconcileInterval: 50 * time.Millisecond,
		TickGranularity:   10 * time.Millisecond,
		BackoffStep:       10 * time.Millisecond,
		BackoffMax:        50 * time.Millisecond,
		BackoffFloorAfter: 5,
	}
	w := New(importDir, queue, cfg, slog.New(slog.DiscardHandler))
	return w, queue, importDir
}

func TestReconcileOnce(t *testing.T) {
	w, queue, dir := setupWatcher(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir.jpg"), 0o755))

	submitted, err := w.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, submitted)

	image, err := queue.GetByFilePath(ctx, filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	require.NotNil(t, image)
	assert.Equal(t, models.MediaTypeImage, image.FileType)

	video, err := queue.GetByFilePath(ctx, filepath.Join(dir, "b.mp4"))
	require.NoError(t, err)
	require.NotNil(t, video)
	assert.Equal(t, models.MediaTypeVideo, video.FileType)

	unsupported, err := queue.GetByFilePath(ctx, filepath.Join(dir, "skip.txt"))
	require.NoError(t, err)
	assert.Nil(t, unsupported)
}

func TestReconcileOnce_RecursesSubdirectories(t *testing.T) {
	w, queue, dir := setupWatcher(t)
	ctx := context.Background()

	nested := filepath.Join(dir, "batch", "2026-08")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "clip.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.jpg"), []byte("x"), 0o644))

	submitted, err := w.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, submitted)

	job, err := queue.GetByFilePath(ctx, filepath.Join(nested, "clip.mp4"))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.MediaTypeVideo, job.FileType)
}

func TestReconcileOnce_Idempotent(t *testing.T) {
	w, queue, dir := setupWatcher(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o644))

	_, err := w.ReconcileOnce(ctx)
	require.NoError(t, err)
	_, err = w.ReconcileOnce(ctx)
	require.NoError(t, err)

	count, err := queue.CountByStatus(ctx, models.QueueStatusQueued)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestReconcileOnce_MissingDir(t *testing.T) {
	w, _, dir := setupWatcher(t)
	require.NoError(t, os.RemoveAll(dir))

	_, err := w.ReconcileOnce(context.Background())
	assert.Error(t, err)
}

func TestRun_EnqueuesCreatedFiles(t *testing.T) {
	w, queue, dir := setupWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the fsnotify watch a moment to attach before creating the file.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(dir, "incoming.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	assert.Eventually(t, func() bool {
		job, err := queue.GetByFilePath(ctx, path)
		return err == nil && job != nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestRun_EnqueuesFilesInSubdirectories(t *testing.T) {
	w, queue, dir := setupWatcher(t)

	// One subdirectory exists before Run; another is created while running.
	existing := filepath.Join(dir, "existing")
	require.NoError(t, os.Mkdir(existing, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	inExisting := filepath.Join(existing, "deep.jpg")
	require.NoError(t, os.WriteFile(inExisting, []byte("x"), 0o644))

	created := filepath.Join(dir, "created")
	require.NoError(t, os.Mkdir(created, 0o755))
	time.Sleep(100 * time.Millisecond)
	inCreated := filepath.Join(created, "late.mp4")
	require.NoError(t, os.WriteFile(inCreated, []byte("x"), 0o644))

	for _, path := range []string{inExisting, inCreated} {
		assert.Eventually(t, func() bool {
			job, err := queue.GetByFilePath(context.Background(), path)
			return err == nil && job != nil
		}, 3*time.Second, 20*time.Millisecond, path)
	}
}

func TestRun_ReconcileCatchesMissedFiles(t *testing.T) {
	w, queue, dir := setupWatcher(t)

	// Present before Run starts: only the periodic scan can find it.
	path := filepath.Join(dir, "preexisting.mp4")
	require.NoError(t, os.WriteFile(path, []byte("mp4"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.Eventually(t, func() bool {
		job, err := queue.GetByFilePath(context.Background(), path)
		return err == nil && job != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestScanBackoff(t *testing.T) {
	w, _, _ := setupWatcher(t)

	assert.Equal(t, 10*time.Millisecond, w.scanBackoff(1))
	assert.Equal(t, 30*time.Millisecond, w.scanBackoff(3))
	assert.Equal(t, 50*time.Millisecond, w.scanBackoff(5))
	assert.Equal(t, 50*time.Millisecond, w.scanBackoff(9))
}
