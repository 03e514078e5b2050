package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/client"
	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect harvest jobs",
	Long: `List recent harvest jobs or inspect a specific job by ID.

Examples:
  stadtzhharvest jobs           # List recent jobs
  stadtzhharvest jobs abc123    # Show details and errors for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "number of jobs to list")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := api.Jobs(ctx, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-16s %-10s %-10s %-8s %s\n", "ID", "SOURCE", "STATUS", "PROGRESS", "ERRORS", "STARTED")
	fmt.Println("--------------------------------------------------------------------------")

	for _, job := range jobs {
		progress := ""
		if job.Total > 0 {
			progress = fmt.Sprintf("%d/%d", job.Progress, job.Total)
		}
		fmt.Printf("%-10s %-16s %-10s %-10s %-8d %s\n",
			job.ID, job.Source, job.Status, progress, job.Stats.Errored, humanize.Time(job.StartedAt))
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	detail, err := api.Job(ctx, id)
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	job := detail.Job

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Source: %s\n", job.Source)
	fmt.Printf("  Status: %s\n", job.Status)
	if job.CreatedBy != "" {
		fmt.Printf("  Started by: %s\n", job.CreatedBy)
	}
	if job.Total > 0 {
		fmt.Printf("  Progress: %d/%d\n", job.Progress, job.Total)
	}
	fmt.Printf("  Started: %s (%s)\n", job.StartedAt.Format(time.RFC3339), humanize.Time(job.StartedAt))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Second))
	}
	if job.Error != nil && *job.Error != "" {
		fmt.Printf("  Error: %s\n", *job.Error)
	}

	fmt.Println("\nOutcomes:")
	fmt.Printf("  Added: %d, Updated: %d, Not modified: %d, Deleted: %d, Errored: %d\n",
		job.Stats.Added, job.Stats.Updated, job.Stats.NotModified, job.Stats.Deleted, job.Stats.Errored)

	printErrors(detail.Errors)
	return nil
}
