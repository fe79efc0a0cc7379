package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mexp/internal/domain"
	"github.com/emiliopalmerini/mexp/internal/service"
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Inspect and edit experiments in the configured store",
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Args:  cobra.NoArgs,
	RunE:  runExperimentList,
}

var experimentGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one experiment as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentGet,
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new experiment",
	Long: `Create a new experiment. The start time defaults to now.

Examples:
  mexp experiment create "work1" --description "Baseline run"
  mexp experiment create "work2" --start 2024-11-28T10:00:00.000+03:00`,
	Args: cobra.ExactArgs(1),
	RunE: runExperimentCreate,
}

var experimentAddPointCmd = &cobra.Command{
	Use:   "add-point <id> <name>",
	Short: "Append a time point to an experiment",
	Long: `Append a time point after the experiment's existing ones.

Examples:
  mexp experiment add-point 3f2c... "warmup done"
  mexp experiment add-point 3f2c... "peak" --at 2024-11-28T12:00:00.000Z -d "max load"`,
	Args: cobra.ExactArgs(2),
	RunE: runExperimentAddPoint,
}

// Flags
var (
	expDescription string
	expStart       string
	pointDesc      string
	pointAt        string
)

func init() {
	rootCmd.AddCommand(experimentCmd)

	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentGetCmd)
	experimentCmd.AddCommand(experimentCreateCmd)
	experimentCmd.AddCommand(experimentAddPointCmd)

	experimentCreateCmd.Flags().StringVarP(&expDescription, "description", "d", "", "Description of the experiment")
	experimentCreateCmd.Flags().StringVar(&expStart, "start", "", "Start time (default now)")
	experimentAddPointCmd.Flags().StringVarP(&pointDesc, "description", "d", "", "Description of the time point")
	experimentAddPointCmd.Flags().StringVar(&pointAt, "at", "", "Time of the point (default now)")
}

// withService opens the configured store and runs fn against a service on it.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.Logger()

	app, err := NewAppContext(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, service.NewService(app.ExperimentRepo, service.WithLogger(logger)))
}

func runExperimentList(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *service.Service) error {
		experiments, err := svc.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(experiments) == 0 {
			fmt.Fprintln(out, "No experiments found")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTART\tFINISH\tPOINTS")
		for _, e := range experiments {
			finish := "-"
			if e.FinishTime != nil {
				finish = domain.FormatTimestamp(*e.FinishTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
				e.ID, e.Name, domain.FormatTimestamp(e.StartTime), finish, len(e.TimePoints))
		}
		return w.Flush()
	})
}

func runExperimentGet(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *service.Service) error {
		e, err := svc.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get experiment %s: %w", args[0], err)
		}
		return printJSON(cmd.OutOrStdout(), e)
	})
}

func runExperimentCreate(cmd *cobra.Command, args []string) error {
	e := domain.Experiment{Name: args[0], Description: expDescription}
	if expStart != "" {
		start, err := domain.ParseTimestamp(expStart)
		if err != nil {
			return err
		}
		e.StartTime = start
	}

	return withService(cmd, func(ctx context.Context, svc *service.Service) error {
		created, err := svc.Add(ctx, e)
		if err != nil {
			return fmt.Errorf("failed to create experiment: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created experiment %s (%s)\n", created.Name, created.ID)
		return nil
	})
}

func runExperimentAddPoint(cmd *cobra.Command, args []string) error {
	at := time.Now().Truncate(time.Millisecond)
	if pointAt != "" {
		parsed, err := domain.ParseTimestamp(pointAt)
		if err != nil {
			return err
		}
		at = parsed
	}
	point := domain.TimePoint{Name: args[1], Description: pointDesc, Time: at}

	return withService(cmd, func(ctx context.Context, svc *service.Service) error {
		updated, err := svc.AppendTimePoints(ctx, args[0], []domain.TimePoint{point})
		if err != nil {
			return fmt.Errorf("failed to add time point: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added time point %q to %s (%d points)\n", point.Name, updated.Name, len(updated.TimePoints))
		return nil
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
