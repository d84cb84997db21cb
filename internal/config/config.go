// Package config loads progression settings from ~/.progression/config.yaml
// and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables on the configuration
func (c *LocalConfig) ApplyEnv() {
	c.Daemon.Port = getEnvInt("PROGRESSION_PORT", c.Daemon.Port)
	c.Daemon.Bind = getEnv("PROGRESSION_BIND", c.Daemon.Bind)
	c.Daemon.LogLevel = getEnv("PROGRESSION_LOG_LEVEL", c.Daemon.LogLevel)

	c.Storage.Driver = getEnv("PROGRESSION_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = getEnv("PROGRESSION_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.LocalPath = getEnv("PROGRESSION_LOCAL_PATH", c.Storage.LocalPath)
	c.Storage.DatabaseURL = getEnv("DATABASE_URL", c.Storage.DatabaseURL)

	c.Ledger.MaxRetries = getEnvInt("PROGRESSION_MAX_RETRIES", c.Ledger.MaxRetries)
	c.Ledger.OpTimeoutSeconds = getEnvInt("PROGRESSION_OP_TIMEOUT_SECONDS", c.Ledger.OpTimeoutSeconds)

	c.Practice.HistoryWindow = getEnvInt("PROGRESSION_HISTORY_WINDOW", c.Practice.HistoryWindow)

	c.Queue.URL = getEnv("RABBITMQ_URL", c.Queue.URL)
	c.Queue.Enabled = getEnvBool("PROGRESSION_QUEUE_ENABLED", c.Queue.Enabled)
	c.Queue.Workers = getEnvInt("PROGRESSION_QUEUE_WORKERS", c.Queue.Workers)
}

// Validate rejects settings the daemon cannot start with
func (c *LocalConfig) Validate() error {
	var problems []string

	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		problems = append(problems, fmt.Sprintf("daemon.port %d out of range", c.Daemon.Port))
	}
	if _, err := ParseLogLevel(c.Daemon.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverLocal, DriverNone:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			problems = append(problems, "storage.driver postgres requires DATABASE_URL")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}

	if c.Ledger.MaxRetries <= 0 {
		problems = append(problems, "ledger.max_retries must be positive")
	}
	if c.Ledger.RetryInitialMS <= 0 || c.Ledger.RetryMaxMS < c.Ledger.RetryInitialMS {
		problems = append(problems, "ledger retry delays must be positive and max >= initial")
	}
	if c.Ledger.OpTimeoutSeconds <= 0 {
		problems = append(problems, "ledger.op_timeout_seconds must be positive")
	}
	if c.Practice.HistoryWindow <= 0 {
		problems = append(problems, "practice.history_window must be positive")
	}
	if c.Queue.Enabled {
		if c.Queue.URL == "" {
			problems = append(problems, "queue.enabled requires RABBITMQ_URL")
		}
		if c.Queue.Workers <= 0 {
			problems = append(problems, "queue.workers must be positive")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ParseLogLevel maps a config log level to slog
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
