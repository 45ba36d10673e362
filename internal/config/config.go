package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"fsindex/internal/logging"
)

// Path storage modes. Changing the mode between runs forces a full rebuild
// because every canonical path in the store changes shape.
const (
	PathModeRelative = "relative"
	PathModeAbsolute = "absolute"
)

// Traversal orders for the crawler.
const (
	OrderBreadth = "breadth"
	OrderDepth   = "depth"
)

// Config holds all engine configuration.
type Config struct {
	RootDir   string // subtree to index
	IndexDir  string // directory holding the index database
	IndexPath string // derived: IndexDir/index.db

	RebuildOnStart bool
	PathMode       string
	TraversalOrder string
	SkipHidden     bool

	BatchSize     int
	QueueCapacity int
	Workers       int // 0 = auto-detect from host

	WatchEnabled      bool
	DebounceInterval  time.Duration
	AggregationWindow time.Duration
	ReconcileInterval time.Duration

	Port           string
	MetricsPort    string
	MetricsEnabled bool
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory taken as defaults.
func Load() (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := &Config{
		RootDir:           getEnv("ROOT_DIR", "."),
		IndexDir:          getEnv("INDEX_DIR", "./index"),
		RebuildOnStart:    getEnvBool("REBUILD_ON_START", false),
		PathMode:          getEnv("PATH_MODE", PathModeRelative),
		TraversalOrder:    getEnv("TRAVERSAL_ORDER", OrderBreadth),
		SkipHidden:        getEnvBool("SKIP_HIDDEN", true),
		BatchSize:         getEnvInt("BATCH_SIZE", 1000),
		QueueCapacity:     getEnvInt("QUEUE_CAPACITY", 10000),
		Workers:           getEnvInt("INDEX_WORKERS", 0),
		WatchEnabled:      getEnvBool("WATCH_ENABLED", true),
		DebounceInterval:  getEnvDuration("DEBOUNCE_INTERVAL", 500*time.Millisecond),
		AggregationWindow: getEnvDuration("AGGREGATION_WINDOW", 2*time.Second),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		Port:              getEnv("PORT", "8080"),
		MetricsPort:       getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
	}

	if cfg.PathMode != PathModeRelative && cfg.PathMode != PathModeAbsolute {
		return nil, fmt.Errorf("invalid PATH_MODE %q (want %q or %q)", cfg.PathMode, PathModeRelative, PathModeAbsolute)
	}
	if cfg.TraversalOrder != OrderBreadth && cfg.TraversalOrder != OrderDepth {
		return nil, fmt.Errorf("invalid TRAVERSAL_ORDER %q (want %q or %q)", cfg.TraversalOrder, OrderBreadth, OrderDepth)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	if cfg.QueueCapacity < 1 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", cfg.QueueCapacity)
	}

	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	cfg.RootDir = root

	indexDir, err := filepath.Abs(cfg.IndexDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve index path: %w", err)
	}
	cfg.IndexDir = indexDir
	cfg.IndexPath = filepath.Join(indexDir, "index.db")

	return cfg, nil
}

// PathPrefix returns the canonical path prefix for the configured path mode:
// "" in relative mode, the slash-normalized root in absolute mode.
func (c *Config) PathPrefix() string {
	if c.PathMode == PathModeAbsolute {
		return filepath.ToSlash(c.RootDir)
	}
	return ""
}

// ValidateRoot verifies the indexed root exists and is a directory.
// Failure here is structural and aborts the operation.
func (c *Config) ValidateRoot() error {
	info, err := os.Stat(c.RootDir)
	if err != nil {
		return fmt.Errorf("root path %s: %w", c.RootDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path %s is not a directory", c.RootDir)
	}
	return nil
}

// EnsureIndexDir creates the index directory if needed and verifies it is
// writable. The write probe mirrors the failure the database would hit later.
func (c *Config) EnsureIndexDir() error {
	if err := os.MkdirAll(c.IndexDir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	testFile := filepath.Join(c.IndexDir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return fmt.Errorf("index directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// LogSummary writes the effective configuration to the log at startup.
func (c *Config) LogSummary() {
	logging.Info("Configuration:")
	logging.Info("  ROOT_DIR:            %s", c.RootDir)
	logging.Info("  INDEX_DIR:           %s", c.IndexDir)
	logging.Info("  PATH_MODE:           %s", c.PathMode)
	logging.Info("  TRAVERSAL_ORDER:     %s", c.TraversalOrder)
	logging.Info("  SKIP_HIDDEN:         %v", c.SkipHidden)
	logging.Info("  BATCH_SIZE:          %d", c.BatchSize)
	logging.Info("  QUEUE_CAPACITY:      %d", c.QueueCapacity)
	logging.Info("  INDEX_WORKERS:       %d (0 = auto)", c.Workers)
	logging.Info("  WATCH_ENABLED:       %v", c.WatchEnabled)
	logging.Info("  DEBOUNCE_INTERVAL:   %v", c.DebounceInterval)
	logging.Info("  AGGREGATION_WINDOW:  %v", c.AggregationWindow)
	logging.Info("  RECONCILE_INTERVAL:  %v", c.ReconcileInterval)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	if logging.IsDebugEnabled() {
		logging.Debug("  REBUILD_ON_START:    %v", c.RebuildOnStart)
		logging.Debug("  PORT:                %s", c.Port)
		logging.Debug("  METRICS_PORT:        %s", c.MetricsPort)
		logging.Debug("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
