package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/client"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	runLocal  bool
	runDetach bool
)

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Run a harvest job for a source",
	Long: `Start a harvest job for a source and follow its progress.

Examples:
  stadtzhharvest run dropzone            # Run on the server, show progress
  stadtzhharvest run dropzone --detach   # Start and return the job ID
  stadtzhharvest run dropzone --local    # Harvest in-process`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvest,
}

func init() {
	runCmd.Flags().BoolVar(&runLocal, "local", false, "harvest in-process instead of on the server")
	runCmd.Flags().BoolVarP(&runDetach, "detach", "d", false, "start the job and return without following it")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runLocal {
		return runLocalHarvest(ctx, args[0])
	}

	job, err := api.Run(ctx, args[0])
	switch {
	case errors.Is(err, client.ErrNotFound):
		return fmt.Errorf("unknown source: %s", args[0])
	case errors.Is(err, client.ErrConflict):
		return fmt.Errorf("source %s already has a running job", args[0])
	case err != nil:
		return fmt.Errorf("start job: %w", err)
	}

	if runDetach {
		fmt.Printf("Started job %s for source %s\n", job.ID, job.Source)
		return nil
	}
	return RunJobProgress(ctx, api, job)
}

func runLocalHarvest(ctx context.Context, source string) error {
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()

	rt, err := service.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
		}
	}()

	job, err := rt.Jobs.Run(ctx, source, os.Getenv("USER"))
	if errors.Is(err, service.ErrUnknownSource) {
		return fmt.Errorf("unknown source: %s", source)
	}

	fmt.Print(summarize(job))
	if job.Stats.Errored > 0 {
		errs, lerr := rt.Jobs.Errors(context.Background(), job.ID)
		if lerr == nil {
			printErrors(errs)
		}
	}
	return err
}

// summarize renders a finished job for the terminal.
func summarize(job models.HarvestJob) string {
	var b strings.Builder
	switch job.Status {
	case service.JobStatusCompleted:
		b.WriteString(defaultTheme.completedStyle().Render("✓ Completed"))
	default:
		b.WriteString(defaultTheme.errorStyle().Render("✗ " + job.Status))
	}
	fmt.Fprintf(&b, " job %s (%s)", job.ID, job.Source)
	if job.CompletedAt != nil {
		fmt.Fprintf(&b, " in %s", job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "  Datasets:      %s\n", humanize.Comma(int64(job.Total)))
	writeStats(&b, job.Stats)
	if job.Error != nil {
		fmt.Fprintf(&b, "\n  Error: %s\n", *job.Error)
	}
	return b.String()
}

func printErrors(errs []models.HarvestError) {
	if len(errs) == 0 {
		return
	}
	fmt.Printf("\nErrors (%d):\n", len(errs))
	for _, e := range errs {
		where := e.Stage
		if e.ObjectID != "" {
			where += " " + e.ObjectID
		}
		fmt.Printf("  • [%s] %s\n", where, e.Message)
	}
}
