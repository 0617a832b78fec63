package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "test.db",
			MaxOpenConns: 10,
			MaxIdleConns: 1,
			LogLevel:     "warn",
		},
		Storage: StorageConfig{BaseDir: "./data"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Worker: WorkerConfig{
			BatchSize:      5,
			RetryBatchSize: 3,
			MaxRetries:     3,
		},
		Watcher: WatcherConfig{
			ReconcileInterval: 60 * time.Second,
			TickGranularity:   10 * time.Second,
		},
		Public: PublicConfig{BaseURL: "https://localhost:1027"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Load without config file should use defaults
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Database defaults
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 1, cfg.Database.MaxIdleConns)

	// Storage defaults
	assert.Equal(t, "./data", cfg.Storage.BaseDir)
	assert.Equal(t, "imports", cfg.Storage.ImportDir)
	assert.Equal(t, "assets", cfg.Storage.AssetsDir)
	assert.Equal(t, "private", cfg.Storage.PrivateDir)
	assert.Equal(t, uint64(1<<30), cfg.Storage.MinFreeBytes)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Worker defaults
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 5, cfg.Worker.BatchSize)
	assert.Equal(t, 3, cfg.Worker.RetryBatchSize)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Worker.RetryCooldown)
	assert.Equal(t, 10*time.Second, cfg.Worker.BackoffStep)
	assert.Equal(t, 60*time.Second, cfg.Worker.BackoffFloor)
	assert.Equal(t, 5, cfg.Worker.BackoffFloorAfter)

	// Watcher defaults
	assert.Equal(t, 60*time.Second, cfg.Watcher.ReconcileInterval)
	assert.Equal(t, 10*time.Second, cfg.Watcher.TickGranularity)
	assert.Equal(t, 30*time.Second, cfg.Watcher.BackoffStep)
	assert.Equal(t, 120*time.Second, cfg.Watcher.BackoffMax)

	// Maintenance defaults
	assert.Equal(t, 5*time.Minute, cfg.Maintenance.HealthInterval)
	assert.Equal(t, time.Hour, cfg.Maintenance.CleanupInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Maintenance.TerminalRetention)

	// Public defaults
	assert.Equal(t, "https://localhost:1027", cfg.Public.BaseURL)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  driver: "postgres"
  host: "db.internal"
  port: 5433
  name: "vault"
  user: "vault"
  password: "hunter2"

storage:
  base_dir: "/var/lib/mediavault"

logging:
  level: "debug"
  format: "text"

worker:
  batch_size: 10
  max_retries: 5
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "vault", cfg.Database.Name)
	assert.Equal(t, "/var/lib/mediavault", cfg.Storage.BaseDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 10, cfg.Worker.BatchSize)
	assert.Equal(t, 5, cfg.Worker.MaxRetries)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MEDIAVAULT_DATABASE_HOST", "env-host")
	t.Setenv("MEDIAVAULT_LOGGING_LEVEL", "warn")
	t.Setenv("MEDIAVAULT_WORKER_BATCH_SIZE", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Worker.BatchSize)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("DB_HOST", "legacy-db")
	t.Setenv("DB_PORT", "5499")
	t.Setenv("DB_NAME", "legacydb")
	t.Setenv("DB_USER", "legacyuser")
	t.Setenv("DB_PASSWORD", "legacypass")
	t.Setenv("PUBLIC_BASE_URL", "https://media.example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "legacy-db", cfg.Database.Host)
	assert.Equal(t, 5499, cfg.Database.Port)
	assert.Equal(t, "legacydb", cfg.Database.Name)
	assert.Equal(t, "legacyuser", cfg.Database.User)
	assert.Equal(t, "legacypass", cfg.Database.Password)
	assert.Equal(t, "https://media.example.com", cfg.Public.BaseURL)
}

func TestLoad_PrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("DB_HOST", "legacy-db")
	t.Setenv("MEDIAVAULT_DATABASE_HOST", "prefixed-db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "prefixed-db", cfg.Database.Host)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validTestConfig()
	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_InvalidDriver(t *testing.T) {
	cfg := validTestConfig()
	cfg.Database.Driver = "invalid"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestValidate_SqliteRequiresDSN(t *testing.T) {
	cfg := validTestConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validTestConfig()
	cfg.Logging.Level = "invalid"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validTestConfig()
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_WorkerConfig(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		errContains string
	}{
		{"zero batch size", func(c *Config) { c.Worker.BatchSize = 0 }, "batch_size"},
		{"negative retry batch", func(c *Config) { c.Worker.RetryBatchSize = -1 }, "retry_batch_size"},
		{"zero max retries", func(c *Config) { c.Worker.MaxRetries = 0 }, "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidate_WatcherIntervals(t *testing.T) {
	cfg := validTestConfig()
	cfg.Watcher.ReconcileInterval = 5 * time.Second
	cfg.Watcher.TickGranularity = 10 * time.Second
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile_interval")
}

func TestValidate_EmptyBaseURL(t *testing.T) {
	cfg := validTestConfig()
	cfg.Public.BaseURL = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "public.base_url")
}

func TestDatabaseConfig_EffectiveDSN(t *testing.T) {
	t.Run("explicit DSN wins", func(t *testing.T) {
		cfg := &DatabaseConfig{Driver: "postgres", DSN: "host=explicit"}
		assert.Equal(t, "host=explicit", cfg.EffectiveDSN())
	})

	t.Run("postgres assembled from parts", func(t *testing.T) {
		cfg := &DatabaseConfig{
			Driver:   "postgres",
			Host:     "db.internal",
			Port:     5432,
			User:     "vault",
			Password: "hunter2",
			Name:     "mediavault",
		}
		assert.Equal(t,
			"host=db.internal port=5432 user=vault password=hunter2 dbname=mediavault sslmode=disable",
			cfg.EffectiveDSN())
	})

	t.Run("mysql assembled from parts", func(t *testing.T) {
		cfg := &DatabaseConfig{
			Driver:   "mysql",
			Host:     "db.internal",
			Port:     3306,
			User:     "vault",
			Password: "hunter2",
			Name:     "mediavault",
		}
		assert.Equal(t,
			"vault:hunter2@tcp(db.internal:3306)/mediavault?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.EffectiveDSN())
	})
}

func TestStorageConfig_Paths(t *testing.T) {
	cfg := &StorageConfig{
		BaseDir:    "/var/lib/mediavault",
		ImportDir:  "imports",
		AssetsDir:  "assets",
		PrivateDir: "private",
		TempDir:    "temp",
	}

	assert.Equal(t, "/var/lib/mediavault/imports", cfg.ImportPath())
	assert.Equal(t, "/var/lib/mediavault/assets", cfg.AssetsPath())
	assert.Equal(t, "/var/lib/mediavault/private", cfg.PrivatePath())
	assert.Equal(t, "/var/lib/mediavault/temp", cfg.TempPath())
}

func TestLoad_NonExistentFile(t *testing.T) {
	// Specifying a non-existent file should fail
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestConfig_AllDrivers(t *testing.T) {
	drivers := []string{"sqlite", "postgres", "mysql"}

	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			cfg := validTestConfig()
			cfg.Database.Driver = driver
			err := cfg.Validate()
			assert.NoError(t, err)
		})
	}
}
