// Package cli provides the command-line interface for stadtzhharvest.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/client"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	cfg config.Config
	api *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stadtzhharvest",
	Short: "Harvest the Stadt Zürich dropzone into CKAN",
	Long: `stadtzhharvest imports datasets from the Stadt Zürich dropzone and
SDK exports into a CKAN catalog.

Jobs run on the harvest server by default; use --local on the run command
to harvest in-process without a server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		endpoint := serverURL
		if endpoint == "" {
			endpoint = cfg.ServerURL
		}
		api = client.New(endpoint)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "harvest server URL (default $HARVEST_SERVER_URL)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statsCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
