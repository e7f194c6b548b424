package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Redis       RedisConfig     `toml:"redis"`
	Scan        ScanConfig      `toml:"scan"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// RedisConfig locates the distributed-lock backend. URL takes precedence
// over Host/Port/DB when both are set.
type RedisConfig struct {
	URL  string `toml:"url"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
	DB   int    `toml:"db"`
}

// Addr returns the host:port form used when URL is not set.
func (r RedisConfig) Addr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// ScanConfig contains defaults for the scan execution subsystem
type ScanConfig struct {
	DefaultConcurrency  int           `toml:"default_concurrency"`  // Parallel scanner semaphore size (1-20)
	BrowserPoolSize     int           `toml:"browser_pool_size"`    // Enterprise pool browser count (1-10)
	PagesPerBrowser     int           `toml:"pages_per_browser"`    // Page slots per pooled browser (1-50)
	ChunkSize           int           `toml:"chunk_size"`           // Enterprise chunk size (100-2000)
	CheckpointDir       string        `toml:"checkpoint_dir"`       // Checkpoint root directory
	CheckpointInterval  int           `toml:"checkpoint_interval"`  // Completed pages between checkpoints
	TimeoutMs           int           `toml:"timeout_ms"`           // Per-page navigation timeout
	MaxRetries          int           `toml:"max_retries"`          // Per-page navigation retries
	UserAgent           string        `toml:"user_agent"`           // Browser user agent
	AcceptSelectors     []string      `toml:"accept_selectors"`     // Consent accept-button selectors, tried in order
	Headless            bool          `toml:"headless"`             // Run browsers headless
	NoSandbox           bool          `toml:"no_sandbox"`           // Disable Chrome sandbox (containers)
	AdaptiveConcurrency bool          `toml:"adaptive_concurrency"` // Enterprise throughput-based tuning
	RequestDelay        time.Duration `toml:"request_delay"`        // Minimum delay between visits to one domain
	SettleWait          time.Duration `toml:"settle_wait"`          // Post-navigation wait for late-set cookies
}

// SchedulerConfig contains configuration for the schedule coordinator
type SchedulerConfig struct {
	Enabled        bool   `toml:"enabled"`
	TickSchedule   string `toml:"tick_schedule"`    // Cron expression for the coordinator tick
	LockTTLSeconds int    `toml:"lock_ttl_seconds"` // Schedule lock TTL
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// DefaultConfig returns the built-in defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/consentry",
			},
		},
		Scan: ScanConfig{
			DefaultConcurrency: 5,
			BrowserPoolSize:    3,
			PagesPerBrowser:    10,
			ChunkSize:          1000,
			CheckpointDir:      "./scan_checkpoints",
			CheckpointInterval: 100,
			TimeoutMs:          30000,
			MaxRetries:         2,
			UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			AcceptSelectors:    []string{`button:has-text("Accept")`},
			Headless:           true,
			NoSandbox:          true,
			RequestDelay:       0,
			SettleWait:         1500 * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			TickSchedule:   "*/1 * * * *",
			LockTTLSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadConfig loads configuration in priority order:
// defaults -> TOML file (optional) -> environment variables.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvironmentOverrides(config)
	return config, nil
}

// applyEnvironmentOverrides applies the environment variables recognised by
// the scan core. Environment always wins over file values.
func applyEnvironmentOverrides(config *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Redis.URL = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		config.Redis.Host = v
	}
	if v := envInt("REDIS_PORT"); v != nil {
		config.Redis.Port = *v
	}
	if v := envInt("REDIS_DB"); v != nil {
		config.Redis.DB = *v
	}
	if v := envInt("SCAN_DEFAULT_CONCURRENCY"); v != nil {
		config.Scan.DefaultConcurrency = *v
	}
	if v := envInt("SCAN_BROWSER_POOL_SIZE"); v != nil {
		config.Scan.BrowserPoolSize = *v
	}
	if v := envInt("SCAN_PAGES_PER_BROWSER"); v != nil {
		config.Scan.PagesPerBrowser = *v
	}
	if v := os.Getenv("SCAN_CHECKPOINT_DIR"); v != "" {
		config.Scan.CheckpointDir = v
	}
	if v := envInt("SCAN_TIMEOUT_MS"); v != nil {
		config.Scan.TimeoutMs = *v
	}
	if v := envInt("SCAN_MAX_RETRIES"); v != nil {
		config.Scan.MaxRetries = *v
	}
	if v := envInt("LOCK_TTL_SECONDS"); v != nil {
		config.Scheduler.LockTTLSeconds = *v
	}
}

func envInt(name string) *int {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &parsed
}
