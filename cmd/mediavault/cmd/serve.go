package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/database"
	"github.com/mediavault/mediavault/internal/ffmpeg"
	"github.com/mediavault/mediavault/internal/keystore"
	"github.com/mediavault/mediavault/internal/maintenance"
	"github.com/mediavault/mediavault/internal/processor"
	"github.com/mediavault/mediavault/internal/repository"
	"github.com/mediavault/mediavault/internal/version"
	"github.com/mediavault/mediavault/internal/watcher"
	"github.com/mediavault/mediavault/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mediavault daemon",
	Long: `Start the mediavault processing daemon.

The daemon provides:
- An intake watcher feeding new files into the persistent processing queue
- A queue worker turning intake files into encrypted artifacts
- Periodic maintenance (database health checks, queue cleanup)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Applied over the loaded config only when explicitly set.
	serveCmd.Flags().String("base-dir", "", "storage base directory")
	serveCmd.Flags().String("import-dir", "", "intake directory to watch")
	serveCmd.Flags().String("database-driver", "", "database driver (sqlite, postgres, mysql)")
	serveCmd.Flags().String("database-dsn", "", "database connection string")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeFlags(cmd, cfg)

	logger := slog.Default()
	logger.Info("starting mediavault",
		slog.String("version", version.Version),
		slog.String("base_dir", cfg.Storage.BaseDir),
		slog.String("database_driver", cfg.Database.Driver),
	)

	if err := ensureDirectories(cfg); err != nil {
		return err
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	queueRepo := repository.NewQueueRepository(db.DB)
	keyRepo := repository.NewKeyRepository(db.DB)
	mediaRepo := repository.NewMediaRepository(db.DB)

	ks := keystore.New(keyRepo, cfg.Storage.PrivatePath(), cfg.Public.BaseURL, logger)

	binaries, err := ffmpeg.DetectBinaries(cfg.FFmpeg)
	if err != nil {
		return err
	}
	logger.Info("ffmpeg binaries detected",
		slog.String("ffmpeg", binaries.FFmpegPath),
		slog.String("ffprobe", binaries.FFprobePath),
	)

	assetsDir := cfg.Storage.AssetsPath()
	images := processor.NewImageTransformer(assetsDir, logger)
	videos := processor.NewVideoTransformer(assetsDir, ks, binaries,
		cfg.FFmpeg.ProbeTimeout, cfg.FFmpeg.EncodeTimeout, logger)
	proc := processor.New(queueRepo, keyRepo, mediaRepo, ks, images, videos,
		assetsDir, cfg.Storage.MinFreeBytes, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Startup recovery: provision the key material, return jobs orphaned by
	// a crash, and sweep intake files that predate the watcher.
	if _, err := ks.ActiveKey(ctx); err != nil {
		return err
	}

	staleCutoff := time.Now().Add(-cfg.Worker.StaleAge)
	requeued, err := queueRepo.RequeueStale(ctx, staleCutoff)
	if err != nil {
		return fmt.Errorf("recovering stale jobs: %w", err)
	}
	if requeued > 0 {
		logger.Info("stale processing jobs requeued", slog.Int64("jobs", requeued))
	}

	w := watcher.New(cfg.Storage.ImportPath(), queueRepo, cfg.Watcher, logger)
	if submitted, err := w.ReconcileOnce(ctx); err != nil {
		return fmt.Errorf("startup intake scan: %w", err)
	} else if submitted > 0 {
		logger.Info("pre-existing intake files queued", slog.Int("files", submitted))
	}

	maint := maintenance.New(db, queueRepo, cfg.Maintenance, logger)
	if err := maint.Start(); err != nil {
		return err
	}
	defer maint.Stop()

	wk := worker.New(queueRepo, proc, cfg.Worker, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return wk.Run(gctx) })

	err = g.Wait()
	logger.Info("mediavault stopped")
	return err
}

// applyServeFlags overrides loaded config with explicitly set serve flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("base-dir") {
		cfg.Storage.BaseDir, _ = cmd.Flags().GetString("base-dir")
	}
	if cmd.Flags().Changed("import-dir") {
		cfg.Storage.ImportDir, _ = cmd.Flags().GetString("import-dir")
	}
	if cmd.Flags().Changed("database-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("database-driver")
	}
	if cmd.Flags().Changed("database-dsn") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database-dsn")
	}
}

// ensureDirectories creates the storage tree the pipeline writes into.
func ensureDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.Storage.ImportPath(),
		cfg.Storage.AssetsPath(),
		cfg.Storage.PrivatePath(),
		cfg.Storage.TempPath(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	// Key material must not be world-readable.
	if err := os.Chmod(cfg.Storage.PrivatePath(), 0o700); err != nil {
		return fmt.Errorf("restricting private dir: %w", err)
	}
	return nil
}
