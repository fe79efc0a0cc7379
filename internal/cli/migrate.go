package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mexp/internal/adapters/turso"
	"github.com/emiliopalmerini/mexp/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Run database migrations",
	Long: `Run libsql database migrations against TURSO_DATABASE_URL.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).

Examples:
  mexp migrate      # Run all pending migrations
  mexp migrate 1    # Migrate to version 1
  mexp migrate 0    # Rollback all migrations`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := turso.Open(cfg.Database.URL, cfg.Database.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	m := migrate.New(db, cfg.Logger())
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, _, err := m.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	fmt.Fprintf(out, "Current version: %d\n", current)

	if len(args) == 0 {
		count, err := m.Up(ctx)
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Fprintln(out, "No migrations to run")
			return nil
		}
		version, _, _ := m.CurrentVersion(ctx)
		fmt.Fprintf(out, "Migrated to version %d (%d migrations applied)\n", version, count)
		return nil
	}

	target, err := strconv.Atoi(args[0])
	if err != nil || target < 0 {
		return fmt.Errorf("invalid version number: %s", args[0])
	}
	if target == current {
		fmt.Fprintln(out, "Already at target version")
		return nil
	}
	if err := m.To(ctx, target); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated to version %d\n", target)
	return nil
}
