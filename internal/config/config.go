// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/emiliopalmerini/mexp/internal/adapters/otel"
	"github.com/emiliopalmerini/mexp/internal/logging"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreTurso  = "turso"
	StoreBadger = "badger"
)

// Database holds Turso database configuration.
type Database struct {
	URL       string `envconfig:"TURSO_DATABASE_URL"`
	AuthToken string `envconfig:"TURSO_AUTH_TOKEN"`
}

// Config holds configuration for the experiment service.
type Config struct {
	Port            int           `envconfig:"EXPERIMENTS_PORT" default:"8080"`
	Store           string        `envconfig:"EXPERIMENTS_STORE" default:"turso"`
	BadgerPath      string        `envconfig:"EXPERIMENTS_BADGER_PATH"`
	LogLevel        string        `envconfig:"EXPERIMENTS_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"EXPERIMENTS_LOG_FORMAT" default:"text"`
	FeedInterval    time.Duration `envconfig:"EXPERIMENTS_FEED_INTERVAL" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"EXPERIMENTS_SHUTDOWN_TIMEOUT" default:"10s"`

	Database Database    `ignored:"true"`
	OTEL     otel.Config `ignored:"true"`
}

// Load reads configuration from environment variables and validates it.
// An unset TURSO_DATABASE_URL or EXPERIMENTS_BADGER_PATH points into DataDir.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.Database); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.OTEL); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreTurso, StoreBadger:
	default:
		return fmt.Errorf("unknown store %q, expected memory, turso or badger", c.Store)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.FeedInterval <= 0 {
		return fmt.Errorf("feed interval must be positive, got %s", c.FeedInterval)
	}
	if c.Store == StoreTurso && c.Database.URL == "" {
		return fmt.Errorf("TURSO_DATABASE_URL is required for the turso store")
	}
	return nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.LogLevel),
		Format: logging.ParseFormat(c.LogFormat),
	}
}

// Logger builds a logger from the configured level and format.
func (c *Config) Logger() *slog.Logger {
	return logging.New(c.Logging())
}
