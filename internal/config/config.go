// Package config loads client configuration from a YAML file with
// environment overrides. Secrets such as the session token are expected to
// arrive via the environment, not the file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
)

// APIConfig addresses the remote REST service.
type APIConfig struct {
	// BaseURL of the remote service, without a trailing slash.
	BaseURL string `yaml:"base_url"`

	// Token is the bearer token for authenticated calls. Usually supplied
	// via DUET_API_TOKEN rather than the file.
	Token string `yaml:"token,omitempty"`

	// TimeoutSeconds bounds each remote call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// RealtimeConfig addresses the push service.
type RealtimeConfig struct {
	URL string `yaml:"url"`
}

// SyncConfig tunes the offline queue.
type SyncConfig struct {
	// MaxRetries bounds replay attempts before an operation is
	// dead-lettered.
	MaxRetries int `yaml:"max_retries"`
}

// CacheConfig tunes offline snapshot retention.
type CacheConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// SchedulerConfig tunes the background loops.
type SchedulerConfig struct {
	ProbeIntervalSeconds int `yaml:"probe_interval_seconds"`
	DrainIntervalMinutes int `yaml:"drain_interval_minutes"`
}

// Config is the full client configuration.
type Config struct {
	// DataDir holds the local SQLite database.
	DataDir string `yaml:"data_dir"`

	// UserID is the active session's user.
	UserID string `yaml:"user_id"`

	LogLevel string `yaml:"log_level"`

	API       APIConfig       `yaml:"api"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Sync      SyncConfig      `yaml:"sync"`
	Cache     CacheConfig     `yaml:"cache"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		API: APIConfig{
			BaseURL:        "http://localhost:5000",
			TimeoutSeconds: 10,
		},
		Realtime: RealtimeConfig{
			URL: "ws://localhost:5000/hubs/sync",
		},
		Sync: SyncConfig{
			MaxRetries: 5,
		},
		Cache: CacheConfig{
			RetentionDays: 7,
		},
		Scheduler: SchedulerConfig{
			ProbeIntervalSeconds: 30,
			DrainIntervalMinutes: 15,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in that order of increasing precedence. A missing
// file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Local .env files are a development convenience.
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults plus environment only.
		case err != nil:
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to read config file", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to parse config file", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DUET_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DUET_USER_ID"); v != "" {
		c.UserID = v
	}
	if v := os.Getenv("DUET_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DUET_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("DUET_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("DUET_REALTIME_URL"); v != "" {
		c.Realtime.URL = v
	}
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return apperrors.New(apperrors.ErrInvalid, "data_dir must be set")
	}
	if c.API.BaseURL == "" {
		return apperrors.New(apperrors.ErrInvalid, "api.base_url must be set")
	}
	if c.API.TimeoutSeconds <= 0 {
		return apperrors.New(apperrors.ErrInvalid, "api.timeout_seconds must be positive")
	}
	if c.Sync.MaxRetries <= 0 {
		return apperrors.New(apperrors.ErrInvalid, "sync.max_retries must be positive")
	}
	if c.Cache.RetentionDays <= 0 {
		return apperrors.New(apperrors.ErrInvalid, "cache.retention_days must be positive")
	}
	return nil
}

// APITimeout returns the per-call remote timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// CacheRetention returns the snapshot eviction horizon.
func (c *Config) CacheRetention() time.Duration {
	return time.Duration(c.Cache.RetentionDays) * 24 * time.Hour
}

// ProbeInterval returns the connectivity probe cadence.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Scheduler.ProbeIntervalSeconds) * time.Second
}

// DrainInterval returns the periodic drain cadence.
func (c *Config) DrainInterval() time.Duration {
	return time.Duration(c.Scheduler.DrainIntervalMinutes) * time.Minute
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".duet")
}
