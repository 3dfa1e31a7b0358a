// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	FlushInterval        time.Duration
	DefaultProjectName   string
	IngestURL            string
	IngestToken          string
	DatabasePath         string
	EventsPath           string
	DashboardFile        string
	MaxConcurrentSubmits int
	MetricsAddr          string
	LogLevel             string
	NotifyOnFailure      bool
}

// Default values
const (
	defaultFlushInterval        = 60 * time.Second
	defaultProjectName          = "Untitled"
	defaultMaxConcurrentSubmits = 4
	defaultLogLevel             = "info"
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		FlushInterval:        getEnvDuration("FLUSH_INTERVAL", defaultFlushInterval),
		DefaultProjectName:   getEnvString("DEFAULT_PROJECT_NAME", defaultProjectName),
		IngestURL:            getEnvString("INGEST_URL", ""),
		IngestToken:          getEnvString("INGEST_TOKEN", ""),
		DatabasePath:         getEnvString("DATABASE_PATH", defaultPath("kpm.db")),
		EventsPath:           getEnvString("EVENTS_PATH", defaultPath("events.jsonl")),
		DashboardFile:        getEnvString("DASHBOARD_FILE", defaultPath("CodeTime.txt")),
		MaxConcurrentSubmits: getEnvInt("MAX_CONCURRENT_SUBMITS", defaultMaxConcurrentSubmits),
		MetricsAddr:          getEnvString("METRICS_ADDR", ""),
		LogLevel:             getEnvString("LOG_LEVEL", defaultLogLevel),
		NotifyOnFailure:      getEnvBool("NOTIFY_ON_FAILURE", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure database directory exists
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	// Ensure the spool directory exists so it can be watched
	if err := ensureDir(filepath.Dir(cfg.EventsPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that tunables are in range.
func (c *Config) Validate() error {
	if c.FlushInterval <= 0 {
		return fmt.Errorf("FLUSH_INTERVAL must be positive, got %v", c.FlushInterval)
	}
	if c.MaxConcurrentSubmits < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SUBMITS must be at least 1, got %d", c.MaxConcurrentSubmits)
	}
	if c.IngestURL != "" && !strings.HasPrefix(c.IngestURL, "http://") && !strings.HasPrefix(c.IngestURL, "https://") {
		return fmt.Errorf("INGEST_URL must be an http(s) URL, got %q", c.IngestURL)
	}
	return nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "kpm", ".env"),
			filepath.Join(home, ".kpm", ".env"),
		)
	}

	return paths
}

// defaultPath returns a file path inside the default data directory.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", "kpm", name)
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
