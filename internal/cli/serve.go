package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mexp/internal/adapters/otel"
	"github.com/emiliopalmerini/mexp/internal/adapters/prometheus"
	"github.com/emiliopalmerini/mexp/internal/feed"
	"github.com/emiliopalmerini/mexp/internal/ports"
	"github.com/emiliopalmerini/mexp/internal/service"
	"github.com/emiliopalmerini/mexp/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the experiment HTTP API.

Examples:
  mexp serve                      # Start on EXPERIMENTS_PORT (default 8080)
  mexp serve --port 3000          # Start on port 3000
  mexp serve --store memory       # Keep experiments in memory only`,
	RunE: runServe,
}

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides EXPERIMENTS_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewAppContext(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	prom := prometheus.NewExporter()
	exporters := ports.MultiExporter{prom}
	if cfg.OTEL.Enabled {
		exp, err := otel.NewExporter(ctx, cfg.OTEL)
		if err != nil {
			logger.Warn("otel exporter disabled", "error", err)
		} else {
			exporters = append(exporters, exp)
		}
	}
	defer func() {
		if err := exporters.Close(context.Background()); err != nil {
			logger.Error("failed to flush metrics", "error", err)
		}
	}()

	broker := feed.NewBroker()
	svc := service.NewService(app.ExperimentRepo,
		service.WithLogger(logger),
		service.WithMetrics(exporters),
		service.WithNotifier(broker),
	)
	poller := feed.NewPoller(svc, broker, cfg.FeedInterval, logger)

	server := web.NewServer(svc, cfg.Port,
		web.WithLogger(logger),
		web.WithPoller(poller),
		web.WithMetricsHandler(prom.Handler()),
		web.WithRequestObserver(prom),
		web.WithShutdownTimeout(cfg.ShutdownTimeout),
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Serving experiments at http://localhost:%d (store: %s)\n", cfg.Port, cfg.Store)
	err = server.Start(ctx)
	logger.Info("server stopped")
	return err
}
