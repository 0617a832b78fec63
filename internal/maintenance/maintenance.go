// Package maintenance schedules the periodic housekeeping tasks: database
// health checks and cleanup of old terminal queue rows.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/database"
	"github.com/mediavault/mediavault/internal/repository"
)

// Maintenance owns the cron schedule for background housekeeping.
type Maintenance struct {
	db     *database.DB
	queue  repository.QueueRepository
	cfg    config.MaintenanceConfig
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a Maintenance scheduler.
func New(db *database.DB, queue repository.QueueRepository, cfg config.MaintenanceConfig, logger *slog.Logger) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{
		db:     db,
		queue:  queue,
		cfg:    cfg,
		cron:   cron.New(),
		logger: logger.With(slog.String("component", "maintenance")),
	}
}

// Start registers the periodic jobs and starts the scheduler.
func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc(every(m.cfg.HealthInterval), m.healthCheck); err != nil {
		return fmt.Errorf("scheduling health check: %w", err)
	}
	if _, err := m.cron.AddFunc(every(m.cfg.CleanupInterval), m.cleanupTerminal); err != nil {
		return fmt.Errorf("scheduling queue cleanup: %w", err)
	}
	m.cron.Start()
	m.logger.Info("maintenance scheduler started",
		slog.Duration("health_interval", m.cfg.HealthInterval),
		slog.Duration("cleanup_interval", m.cfg.CleanupInterval),
		slog.Duration("terminal_retention", m.cfg.TerminalRetention),
	)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("maintenance scheduler stopped")
}

// healthCheck pings the database and logs pool statistics.
func (m *Maintenance) healthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.db.Ping(ctx); err != nil {
		m.logger.Error("database health check failed", slog.String("error", err.Error()))
		return
	}
	m.logger.Info("database health check ok")
	m.db.LogStats()
}

// cleanupTerminal deletes completed and failed queue rows older than the
// retention window.
func (m *Maintenance) cleanupTerminal() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-m.cfg.TerminalRetention)
	removed, err := m.queue.DeleteTerminal(ctx, cutoff)
	if err != nil {
		m.logger.Error("queue cleanup failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		m.logger.Info("old queue rows removed", slog.Int64("rows", removed))
	}
}

// every renders an interval as a cron spec.
func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
