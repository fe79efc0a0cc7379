package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mexp/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mexp",
	Short: "Experiment recording service",
	Long: `mexp records experiments and the time points observed while they run.

It serves a JSON HTTP API with a live event stream, and offers commands
to inspect and edit the configured store directly.`,
	SilenceUsage: true,
}

var (
	storeFlag    string
	logLevelFlag string
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "Store backend: memory, turso or badger (overrides EXPERIMENTS_STORE)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (overrides EXPERIMENTS_LOG_LEVEL)")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("store") {
		cfg.Store = storeFlag
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
