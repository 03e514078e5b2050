package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/spf13/cobra"
)

var sourcesLocal bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List harvest sources",
	Long: `List the harvest sources registered on the server, or those in the
local sources file with --local.`,
	Args: cobra.NoArgs,
	RunE: runSources,
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesLocal, "local", false, "read the local sources file instead of asking the server")
}

func runSources(cmd *cobra.Command, args []string) error {
	var (
		sources []config.Source
		err     error
	)
	if sourcesLocal {
		sources, err = config.LoadSources(cfg.SourcesFile)
	} else {
		sources, err = api.Sources(context.Background())
	}
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	if len(sources) == 0 {
		fmt.Println("No sources configured")
		return nil
	}

	fmt.Printf("%-20s %-10s %-38s %s\n", "NAME", "TYPE", "ID", "URL")
	for _, s := range sources {
		fmt.Printf("%-20s %-10s %-38s %s\n", s.Name, s.Type, s.ID, s.URL)
	}
	return nil
}
