package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverLocal    = "local"
	DriverNone     = "none"
)

// LocalConfig holds configuration for local daemon mode
type LocalConfig struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	Storage  StorageConfig  `yaml:"storage"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Practice PracticeConfig `yaml:"practice"`
	Queue    QueueConfig    `yaml:"queue"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// StorageConfig selects and configures the ledger backend
type StorageConfig struct {
	// Driver is one of sqlite, postgres, local or none.
	Driver string `yaml:"driver"`

	// SQLitePath defaults to ~/.progression/data/progression.db.
	SQLitePath string `yaml:"sqlite_path,omitempty"`

	// LocalPath defaults to ~/.progression/data/ledger.
	LocalPath string `yaml:"local_path,omitempty"`

	// DatabaseURL is read from DATABASE_URL only.
	DatabaseURL string `yaml:"-"`

	// MaxConns sizes the postgres pool.
	MaxConns int32 `yaml:"max_conns,omitempty"`
}

// LedgerConfig holds conflict retry and timeout settings
type LedgerConfig struct {
	MaxRetries       int `yaml:"max_retries"`
	RetryInitialMS   int `yaml:"retry_initial_ms"`
	RetryMaxMS       int `yaml:"retry_max_ms"`
	OpTimeoutSeconds int `yaml:"op_timeout_seconds"`
}

// PracticeConfig holds recommender settings
type PracticeConfig struct {
	HistoryWindow int      `yaml:"history_window"`
	Rotation      []string `yaml:"rotation,omitempty"`
}

// QueueConfig holds learning event intake settings
type QueueConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"-"` // from RABBITMQ_URL only
	Workers  int    `yaml:"workers"`
	Prefetch int    `yaml:"prefetch"`
}

// RetryInitial is the first conflict backoff
func (c LedgerConfig) RetryInitial() time.Duration {
	return time.Duration(c.RetryInitialMS) * time.Millisecond
}

// RetryMax caps the conflict backoff
func (c LedgerConfig) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMS) * time.Millisecond
}

// OpTimeout bounds one ledger operation
func (c LedgerConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutSeconds) * time.Second
}

// ProgressionDir returns the path to ~/.progression, or PROGRESSION_HOME when set
func ProgressionDir() (string, error) {
	if dir := os.Getenv("PROGRESSION_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".progression"), nil
}

// EnsureProgressionDir creates the progression directory and its subdirectories
func EnsureProgressionDir() (string, error) {
	dir, err := ProgressionDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "data"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}
	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Driver:   DriverSQLite,
			MaxConns: 10,
		},
		Ledger: LedgerConfig{
			MaxRetries:       3,
			RetryInitialMS:   10,
			RetryMaxMS:       200,
			OpTimeoutSeconds: 5,
		},
		Practice: PracticeConfig{
			HistoryWindow: 50,
		},
		Queue: QueueConfig{
			Enabled:  false,
			Workers:  3,
			Prefetch: 3,
		},
	}
}

// ConfigPath returns the path of config.yaml
func ConfigPath() (string, error) {
	dir, err := ProgressionDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadLocalConfig loads ~/.progression/config.yaml over the defaults, then
// applies environment overrides. A missing file yields the defaults.
func LoadLocalConfig() (*LocalConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFile(path)
}

// LoadLocalConfigFile loads the given YAML file over the defaults
func LoadLocalConfigFile(path string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveLocalConfig saves configuration to ~/.progression/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureProgressionDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SQLitePath resolves the sqlite database path
func (c *LocalConfig) SQLitePath() (string, error) {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath, nil
	}
	dir, err := ProgressionDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data", "progression.db"), nil
}

// LocalPath resolves the JSON store directory
func (c *LocalConfig) LocalPath() (string, error) {
	if c.Storage.LocalPath != "" {
		return c.Storage.LocalPath, nil
	}
	dir, err := ProgressionDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data", "ledger"), nil
}
