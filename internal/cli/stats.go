package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show the harvest server's runtime statistics: record outcomes and
timings of gather, import and catalog calls since the last restart.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := api.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(stats *metrics.Snapshot) {
	uptime := time.Duration(stats.UptimeSeconds * float64(time.Second))
	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Up since: %s\n", humanize.Time(time.Now().Add(-uptime)))

	var b strings.Builder
	writeStats(&b, stats.Outcomes)
	fmt.Printf("\nRecords:\n%s", b.String())

	if len(stats.Operations) == 0 {
		return
	}
	fmt.Printf("\nOperations:\n")
	for _, op := range stats.Operations {
		fmt.Printf("  %s\n", op.Name)
		printOpStats(op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op metrics.OperationSnapshot) {
	fmt.Printf("    Calls: %s, Total: %dms\n", humanize.Comma(op.Count), op.TotalTimeMs)
	fmt.Printf("    Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
