package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "mexp"

// DataDir returns the XDG data directory for mexp.
// It respects XDG_DATA_HOME if set, otherwise falls back to ~/.local/share/mexp
func DataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".local", "share", appName), nil
}

// resolvePaths fills unset local store locations with paths under DataDir
// and creates that directory when it is used.
func (c *Config) resolvePaths() error {
	if c.Database.URL != "" && c.BadgerPath != "" {
		return nil
	}

	dir, err := DataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if c.Database.URL == "" {
		c.Database.URL = "file:" + filepath.Join(dir, appName+".db")
	}
	if c.BadgerPath == "" {
		c.BadgerPath = filepath.Join(dir, "badger")
	}
	return nil
}
