// Package config provides configuration management for mediavault using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultMaxOpenConns       = 10
	defaultMaxIdleConns       = 1
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultPollInterval       = 5 * time.Second
	defaultBatchSize          = 5
	defaultRetryBatchSize     = 3
	defaultMaxRetries         = 3
	defaultRetryCooldown      = 5 * time.Minute
	defaultWorkerBackoffStep  = 10 * time.Second
	defaultWorkerBackoffFloor = 60 * time.Second
	defaultBackoffFloorAfter  = 5
	defaultReconcileInterval  = 60 * time.Second
	defaultReconcileTick      = 10 * time.Second
	defaultWatcherBackoffStep = 30 * time.Second
	defaultWatcherBackoffMax  = 120 * time.Second
	defaultStaleProcessingAge = time.Hour
	defaultHealthInterval     = 5 * time.Minute
	defaultCleanupInterval    = time.Hour
	defaultTerminalRetention  = 7 * 24 * time.Hour
	defaultMinFreeBytes       = 1 << 30 // 1 GiB
	defaultEncodeTimeout      = 2 * time.Hour
	defaultProbeTimeout       = 60 * time.Second
	defaultPublicBaseURL      = "https://localhost:1027"
)

// Config holds all configuration for the application.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Watcher     WatcherConfig     `mapstructure:"watcher"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Public      PublicConfig      `mapstructure:"public"`
}

// DatabaseConfig holds database connection configuration.
// Either DSN is set directly, or (for postgres/mysql) it is assembled
// from the Host/Port/Name/User/Password parts.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	ImportDir    string `mapstructure:"import_dir"`  // intake directory watched for new files
	AssetsDir    string `mapstructure:"assets_dir"`  // encrypted artifacts and HLS streams
	PrivateDir   string `mapstructure:"private_dir"` // raw key material (enc.key)
	TempDir      string `mapstructure:"temp_dir"`
	MinFreeBytes uint64 `mapstructure:"min_free_bytes"` // preflight threshold for the assets filesystem
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// WorkerConfig holds queue worker configuration.
type WorkerConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`       // sleep between polling rounds
	BatchSize         int           `mapstructure:"batch_size"`          // queued jobs claimed per round
	RetryBatchSize    int           `mapstructure:"retry_batch_size"`    // failed jobs re-attempted per round
	MaxRetries        int           `mapstructure:"max_retries"`         // attempts before a job is terminal
	RetryCooldown     time.Duration `mapstructure:"retry_cooldown"`      // minimum age of a failure before retry
	BackoffStep       time.Duration `mapstructure:"backoff_step"`        // added per consecutive DB error
	BackoffFloor      time.Duration `mapstructure:"backoff_floor"`       // minimum sleep once errors persist
	BackoffFloorAfter int           `mapstructure:"backoff_floor_after"` // consecutive errors before floor applies
	StaleAge          time.Duration `mapstructure:"stale_age"`           // processing rows older than this are requeued at startup
}

// WatcherConfig holds intake watcher and reconciler configuration.
type WatcherConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	TickGranularity   time.Duration `mapstructure:"tick_granularity"`
	BackoffStep       time.Duration `mapstructure:"backoff_step"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	BackoffFloorAfter int           `mapstructure:"backoff_floor_after"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath    string        `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	ProbePath     string        `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = auto-detect)
	EncodeTimeout time.Duration `mapstructure:"encode_timeout"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// MaintenanceConfig holds periodic maintenance configuration.
type MaintenanceConfig struct {
	HealthInterval    time.Duration `mapstructure:"health_interval"`    // DB health check cadence
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`   // terminal-row cleanup cadence
	TerminalRetention time.Duration `mapstructure:"terminal_retention"` // age before completed/failed rows are purged
}

// PublicConfig holds externally visible addressing configuration.
type PublicConfig struct {
	// BaseURL is the public origin used to build HLS key URIs
	// ({base}/api/media/keys/{id}).
	BaseURL string `mapstructure:"base_url"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with MEDIAVAULT_ and use underscores
// for nesting. Example: MEDIAVAULT_DATABASE_HOST=db.internal.
//
// The flat variables DB_HOST, DB_PORT, DB_NAME, DB_USER, DB_PASSWORD and
// PUBLIC_BASE_URL are also honored for compatibility with existing
// deployments.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/mediavault")
		v.AddConfigPath("$HOME/.mediavault")
	}

	// Environment variable settings
	v.SetEnvPrefix("MEDIAVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnv maps the flat environment variables used by older
// deployments onto their structured keys. The prefixed form still wins
// because viper checks bound names in order.
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("database.host", "MEDIAVAULT_DATABASE_HOST", "DB_HOST")
	v.BindEnv("database.port", "MEDIAVAULT_DATABASE_PORT", "DB_PORT")
	v.BindEnv("database.name", "MEDIAVAULT_DATABASE_NAME", "DB_NAME")
	v.BindEnv("database.user", "MEDIAVAULT_DATABASE_USER", "DB_USER")
	v.BindEnv("database.password", "MEDIAVAULT_DATABASE_PASSWORD", "DB_PASSWORD")
	v.BindEnv("public.base_url", "MEDIAVAULT_PUBLIC_BASE_URL", "PUBLIC_BASE_URL")
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "mediavault")
	v.SetDefault("database.user", "mediavault")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.import_dir", "imports")
	v.SetDefault("storage.assets_dir", "assets")
	v.SetDefault("storage.private_dir", "private")
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("storage.min_free_bytes", defaultMinFreeBytes)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Worker defaults
	v.SetDefault("worker.poll_interval", defaultPollInterval)
	v.SetDefault("worker.batch_size", defaultBatchSize)
	v.SetDefault("worker.retry_batch_size", defaultRetryBatchSize)
	v.SetDefault("worker.max_retries", defaultMaxRetries)
	v.SetDefault("worker.retry_cooldown", defaultRetryCooldown)
	v.SetDefault("worker.backoff_step", defaultWorkerBackoffStep)
	v.SetDefault("worker.backoff_floor", defaultWorkerBackoffFloor)
	v.SetDefault("worker.backoff_floor_after", defaultBackoffFloorAfter)
	v.SetDefault("worker.stale_age", defaultStaleProcessingAge)

	// Watcher defaults
	v.SetDefault("watcher.reconcile_interval", defaultReconcileInterval)
	v.SetDefault("watcher.tick_granularity", defaultReconcileTick)
	v.SetDefault("watcher.backoff_step", defaultWatcherBackoffStep)
	v.SetDefault("watcher.backoff_max", defaultWatcherBackoffMax)
	v.SetDefault("watcher.backoff_floor_after", defaultBackoffFloorAfter)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.encode_timeout", defaultEncodeTimeout)
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)

	// Maintenance defaults
	v.SetDefault("maintenance.health_interval", defaultHealthInterval)
	v.SetDefault("maintenance.cleanup_interval", defaultCleanupInterval)
	v.SetDefault("maintenance.terminal_retention", defaultTerminalRetention)

	// Public defaults
	v.SetDefault("public.base_url", defaultPublicBaseURL)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for sqlite")
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Worker validation
	if c.Worker.BatchSize < 1 {
		return fmt.Errorf("worker.batch_size must be at least 1")
	}
	if c.Worker.RetryBatchSize < 0 {
		return fmt.Errorf("worker.retry_batch_size must not be negative")
	}
	if c.Worker.MaxRetries < 1 {
		return fmt.Errorf("worker.max_retries must be at least 1")
	}

	// Watcher validation
	if c.Watcher.ReconcileInterval < c.Watcher.TickGranularity {
		return fmt.Errorf("watcher.reconcile_interval must not be shorter than watcher.tick_granularity")
	}

	// Public validation
	if c.Public.BaseURL == "" {
		return fmt.Errorf("public.base_url is required")
	}

	return nil
}

// EffectiveDSN returns the connection string for the configured driver.
// An explicit DSN always wins; otherwise one is assembled from the
// host/port/name/user/password parts.
func (c *DatabaseConfig) EffectiveDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Name)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Name)
	default:
		return c.DSN
	}
}

// ImportPath returns the full path to the intake directory.
func (c *StorageConfig) ImportPath() string {
	return filepath.Join(c.BaseDir, c.ImportDir)
}

// AssetsPath returns the full path to the assets directory.
func (c *StorageConfig) AssetsPath() string {
	return filepath.Join(c.BaseDir, c.AssetsDir)
}

// PrivatePath returns the full path to the private key directory.
func (c *StorageConfig) PrivatePath() string {
	return filepath.Join(c.BaseDir, c.PrivateDir)
}

// TempPath returns the full path to the temp directory.
func (c *StorageConfig) TempPath() string {
	return filepath.Join(c.BaseDir, c.TempDir)
}
