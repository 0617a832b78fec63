package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/mediavault/mediavault/internal/keystore"
	"github.com/mediavault/mediavault/internal/models"
	"github.com/mediavault/mediavault/internal/repository"
)

// Processor runs a claimed queue job through the full pipeline: dedup,
// transform, encrypt, catalog. It owns the success paths (completed and
// duplicate); failures are returned to the caller for retry accounting.
type Processor struct {
	queue  repository.QueueRepository
	keyDB  repository.KeyRepository
	media  repository.MediaRepository
	keys   *keystore.Keystore
	images ImageTransformer
	videos VideoTransformer

	assetsDir    string
	minFreeBytes uint64
	logger       *slog.Logger

	// Seams for tests.
	now      func() time.Time
	diskFree func(ctx context.Context, path string) (uint64, error)
}

// New creates a Processor.
func New(
	queue repository.QueueRepository,
	keyDB repository.KeyRepository,
	media repository.MediaRepository,
	keys *keystore.Keystore,
	images ImageTransformer,
	videos VideoTransformer,
	assetsDir string,
	minFreeBytes uint64,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		queue:        queue,
		keyDB:        keyDB,
		media:        media,
		keys:         keys,
		images:       images,
		videos:       videos,
		assetsDir:    assetsDir,
		minFreeBytes: minFreeBytes,
		logger:       logger.With(slog.String("component", "processor")),
		now:          time.Now,
		diskFree:     freeBytes,
	}
}

func freeBytes(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Process runs one claimed job end to end. On success (including the
// duplicate short-circuit) the queue row is transitioned to completed and
// the intake file removed; any returned error leaves the job for the
// caller's failure handling.
func (p *Processor) Process(ctx context.Context, job *models.QueueJob) error {
	log := p.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("file_path", job.FilePath),
	)
	log.Info("processing file")

	if err := p.preflight(ctx); err != nil {
		return err
	}

	fileHash, err := HashFile(job.FilePath)
	if err != nil {
		return err
	}

	existing, err := p.media.FindByHash(ctx, fileHash)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Warn("duplicate file detected",
			slog.String("existing_id", existing.ID),
			slog.String("existing_name", existing.OriginalName),
		)
		if err := p.queue.MarkDuplicate(ctx, job.ID, existing.ID); err != nil {
			return err
		}
		return p.removeIntake(job.FilePath, log)
	}

	info, err := os.Stat(job.FilePath)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", job.FilePath, err)
	}

	fileID := models.NewFileID(job.FilePath, p.now())
	mimeType := MimeTypeFor(job.FilePath)

	key, err := p.keys.ActiveKey(ctx)
	if err != nil {
		return err
	}
	keyBytes, err := key.KeyBytes()
	if err != nil {
		return err
	}

	record := &models.MediaFile{
		ID:              fileID,
		OriginalName:    filepath.Base(job.FilePath),
		FileHash:        fileHash,
		FileType:        job.FileType,
		MimeType:        mimeType,
		FileSizeBytes:   info.Size(),
		EncryptionKeyID: key.ID,
		Metadata:        "{}",
	}

	switch job.FileType {
	case models.MediaTypeImage:
		result, err := p.images.Process(ctx, job.FilePath, fileID, keyBytes)
		if err != nil {
			return err
		}
		record.Width = &result.Width
		record.Height = &result.Height
		record.StoragePath = result.StoragePath
		record.ThumbnailPath = result.ThumbnailPath

	case models.MediaTypeVideo:
		result, err := p.videos.Process(ctx, job.FilePath, fileID, keyBytes)
		if err != nil {
			return err
		}
		record.Width = &result.Width
		record.Height = &result.Height
		record.DurationSeconds = &result.Duration
		record.StoragePath = result.StoragePath
		record.ThumbnailPath = result.ThumbnailPath
		record.PreviewPath = result.PreviewPath
		extra, err := json.Marshal(map[string]string{"iv": result.IVHex})
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		record.Metadata = string(extra)

	default:
		return fmt.Errorf("%w: %s", models.ErrInvalidMediaType, job.FileType)
	}

	// The key row must still exist before the catalog references it; a
	// vanished key would leave undecryptable artifacts behind a valid row.
	stored, err := p.keyDB.GetByID(ctx, key.ID)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("encryption key %s no longer exists", key.ID)
	}

	completedAt := models.Time(p.now())
	record.ProcessingStatus = "completed"
	record.ProcessingCompletedAt = &completedAt

	if err := p.media.Create(ctx, record); err != nil {
		return fmt.Errorf("cataloging %s: %w", fileID, err)
	}

	if err := p.queue.MarkCompleted(ctx, job.ID); err != nil {
		return err
	}
	if err := p.removeIntake(job.FilePath, log); err != nil {
		return err
	}

	log.Info("file processed",
		slog.String("media_id", fileID),
		slog.String("file_type", string(job.FileType)),
	)
	return nil
}

// preflight refuses work when the assets filesystem is low on space; a
// half-written HLS stream is worse than a retried job.
func (p *Processor) preflight(ctx context.Context) error {
	if p.minFreeBytes == 0 {
		return nil
	}
	free, err := p.diskFree(ctx, p.assetsDir)
	if err != nil {
		return fmt.Errorf("checking free space on %s: %w", p.assetsDir, err)
	}
	if free < p.minFreeBytes {
		return fmt.Errorf("insufficient disk space on %s: %d bytes free, %d required",
			p.assetsDir, free, p.minFreeBytes)
	}
	return nil
}

func (p *Processor) removeIntake(path string, log *slog.Logger) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing intake file %s: %w", path, err)
	}
	log.Debug("intake file removed", slog.String("path", path))
	return nil
}
