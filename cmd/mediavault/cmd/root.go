// Package cmd implements the CLI commands for mediavault.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/observability"
	"github.com/mediavault/mediavault/internal/version"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "mediavault",
	Short:   "Encrypted media intake and processing daemon",
	Version: version.Short(),
	Long: `mediavault watches an intake directory for images and videos, processes
them into encrypted web-ready artifacts, and records them in a media catalog.

Images become encrypted WebP renditions with thumbnails. Videos become
AES-128 encrypted HLS streams with animated WebP thumbnails. Every intake
file is deduplicated by content hash and tracked through a persistent
processing queue with retries.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// Global flags. These are not bound to viper: they are applied only when
	// explicitly set, preserving the priority CLI flag > env > config > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./configs, /etc/mediavault, $HOME/.mediavault)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initLogging configures the default slog logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (MEDIAVAULT_LOGGING_LEVEL, MEDIAVAULT_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initLogging() error {
	logCfg := config.LoggingConfig{Level: "info", Format: "json"}
	if cfg, err := config.Load(cfgFile); err == nil {
		logCfg = cfg.Logging
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		logCfg.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		logCfg.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	logCfg.Level = strings.ToLower(logCfg.Level)
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}
	logCfg.Format = strings.ToLower(logCfg.Format)

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)
	return nil
}
