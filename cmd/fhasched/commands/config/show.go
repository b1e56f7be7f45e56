package config

import (
	"fmt"
	"os"

	"github.com/marmos91/fhasched/internal/cli/output"
	"github.com/marmos91/fhasched/pkg/config"
	"github.com/spf13/cobra"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the effective fhasched configuration: the file merged with
FHASCHED_* environment overrides and the defaults.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show default config as YAML
  fhasched config show

  # Show as JSON
  fhasched config show --output json

  # See what an environment override does
  FHASCHED_SCHEDULER_BIN_SIZE=1MiB fhasched config show`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, cfg)
	default:
		return fmt.Errorf("config show supports yaml and json only")
	}
}
