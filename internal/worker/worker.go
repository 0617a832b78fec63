// Package worker drains the processing queue, claiming jobs in rounds and
// applying retry accounting and database-error backoff.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/models"
	"github.com/mediavault/mediavault/internal/repository"
)

// JobProcessor runs one claimed job end to end.
type JobProcessor interface {
	Process(ctx context.Context, job *models.QueueJob) error
}

// Worker polls the queue and processes claimed jobs sequentially.
type Worker struct {
	id     string
	queue  repository.QueueRepository
	proc   JobProcessor
	cfg    config.WorkerConfig
	logger *slog.Logger
}

// New creates a Worker with a unique identity for claim bookkeeping.
func New(queue repository.QueueRepository, proc JobProcessor, cfg config.WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Worker{
		id:     id,
		queue:  queue,
		proc:   proc,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "worker"), slog.String("worker_id", id)),
	}
}

// ID returns the worker's claim identity.
func (w *Worker) ID() string {
	return w.id
}

// Run polls until the context is canceled. Database errors back off
// progressively instead of spinning; job failures are retried through the
// queue's retry budget.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		slog.Int("batch_size", w.cfg.BatchSize),
		slog.Int("retry_batch_size", w.cfg.RetryBatchSize),
	)

	consecutiveDBErrors := 0
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopping")
			return nil
		}

		if err := w.runRound(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return nil
			}
			consecutiveDBErrors++
			delay := w.dbBackoff(consecutiveDBErrors)
			w.logger.Error("queue round failed",
				slog.Int("consecutive_errors", consecutiveDBErrors),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()),
			)
			if consecutiveDBErrors >= w.cfg.BackoffFloorAfter {
				consecutiveDBErrors = 0
			}
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}

		consecutiveDBErrors = 0
		if !sleepCtx(ctx, w.cfg.PollInterval) {
			return nil
		}
	}
}

// runRound claims and processes one batch of pending plus retryable jobs.
// The returned error is a queue-level failure; per-job failures are absorbed
// into retry accounting.
func (w *Worker) runRound(ctx context.Context) error {
	pending, err := w.queue.GetPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	retryable, err := w.queue.GetRetryable(ctx, w.cfg.RetryBatchSize, w.cfg.RetryCooldown)
	if err != nil {
		return err
	}

	jobs := append(pending, retryable...)
	if len(jobs) == 0 {
		return nil
	}
	w.logger.Info("processing round", slog.Int("jobs", len(jobs)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.runJob(ctx, job); err != nil {
			// Queue-level failure; break the round and let the caller
			// back off. The job itself was not marked failed, so it is
			// retried once the database is reachable again.
			return err
		}
	}
	return nil
}

// runJob claims and processes a single job. The returned error is reserved
// for queue-level failures.
func (w *Worker) runJob(ctx context.Context, job *models.QueueJob) error {
	log := w.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("file_path", job.FilePath),
	)

	if err := w.queue.Claim(ctx, job.ID, w.id); err != nil {
		if errors.Is(err, models.ErrJobNotClaimable) {
			log.Debug("job no longer claimable")
			return nil
		}
		return err
	}

	if job.RetryCount > 0 {
		log.Info("retrying job", slog.Int("attempt", job.RetryCount+1))
	}

	if _, err := os.Stat(job.FilePath); err != nil {
		log.Warn("intake file not found")
		return w.failJob(ctx, job, fmt.Errorf("file not found: %s", job.FilePath), log)
	}

	if err := w.proc.Process(ctx, job); err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-job: leave the row in processing; the startup
			// stale-job recovery requeues it.
			return nil
		}
		log.Error("job failed", slog.String("error", err.Error()))
		return w.failJob(ctx, job, err, log)
	}
	return nil
}

// failJob records the failure and requeues when retry budget remains.
func (w *Worker) failJob(ctx context.Context, job *models.QueueJob, jobErr error, log *slog.Logger) error {
	if err := w.queue.MarkFailed(ctx, job.ID, jobErr.Error()); err != nil {
		return err
	}
	if job.RetryCount+1 < job.MaxRetries {
		if err := w.queue.Requeue(ctx, job.ID); err != nil {
			return err
		}
		log.Info("job requeued for retry",
			slog.Int("retry_count", job.RetryCount+1),
			slog.Int("max_retries", job.MaxRetries),
		)
	} else {
		if err := w.queue.ExhaustRetries(ctx, job.ID); err != nil {
			return err
		}
		log.Warn("job failed terminally", slog.Int("attempts", job.RetryCount+1))
	}
	return nil
}

// dbBackoff grows linearly with consecutive failures and floors at the
// configured minimum once the streak persists.
func (w *Worker) dbBackoff(consecutiveErrors int) time.Duration {
	if consecutiveErrors >= w.cfg.BackoffFloorAfter {
		return w.cfg.BackoffFloor
	}
	return time.Duration(consecutiveErrors) * w.cfg.BackoffStep
}

// sleepCtx sleeps for d unless the context ends first. Returns false when
// the context ended.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
