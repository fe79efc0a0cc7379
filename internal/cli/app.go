package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/emiliopalmerini/mexp/internal/adapters/badger"
	"github.com/emiliopalmerini/mexp/internal/adapters/memory"
	"github.com/emiliopalmerini/mexp/internal/adapters/turso"
	"github.com/emiliopalmerini/mexp/internal/config"
	"github.com/emiliopalmerini/mexp/internal/migrate"
	"github.com/emiliopalmerini/mexp/internal/ports"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	Config         *config.Config
	Logger         *slog.Logger
	DB             *sql.DB
	ExperimentRepo ports.ExperimentRepository

	closers []func() error
}

// NewAppContext opens the configured store. For the turso store pending
// migrations are applied first.
func NewAppContext(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AppContext, error) {
	a := &AppContext{Config: cfg, Logger: logger}

	switch cfg.Store {
	case config.StoreMemory:
		a.ExperimentRepo = memory.NewExperimentRepository()

	case config.StoreBadger:
		repo, err := badger.Open(badger.Config{Path: cfg.BadgerPath})
		if err != nil {
			return nil, err
		}
		a.ExperimentRepo = repo
		a.closers = append(a.closers, repo.Close)

	case config.StoreTurso:
		db, err := turso.Open(cfg.Database.URL, cfg.Database.AuthToken)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		applied, err := migrate.New(db, logger).Up(ctx)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if applied > 0 {
			logger.Info("applied migrations", "count", applied)
		}
		a.DB = db
		a.ExperimentRepo = turso.NewExperimentRepository(db)
		a.closers = append(a.closers, db.Close)

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	logger.Debug("opened store", "store", cfg.Store)
	return a, nil
}

// Close releases all resources held by the AppContext.
func (a *AppContext) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
