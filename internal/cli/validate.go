package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config.json|->",
	Short: "Validate a dropzone source configuration",
	Long: `Check a dropzone source configuration before registering it.

data_path, update_datasets and update_date_last_modified are required.

Examples:
  stadtzhharvest validate source.json
  echo '{"data_path":"/dz","update_datasets":true,"update_date_last_modified":false}' | stadtzhharvest validate -`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := config.ValidateSourceConfig(string(raw)); err != nil {
		exitWithError("invalid source config: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Source config is valid")
	return nil
}
