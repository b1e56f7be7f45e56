package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/fhasched/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	statsServer string
	statsLimit  int
	statsOutput string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the scheduler statistics of a running instance",
	Long: `Fetch the file-handle affinity statistics from a running instance.

The dump lists the live tunables, the cumulative counters, assignments per
rule, the files currently tracked with their bound workers, and the load of
every pool worker.

Examples:
  # Dump the local instance
  fhasched stats

  # Show at most 20 tracked files
  fhasched stats --limit 20

  # Query another instance as JSON
  fhasched stats --server http://10.0.0.5:8080 -o json`,
	RunE: runStats,
}

func init() {
	addServerFlag(statsCmd, &statsServer)
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 50, "Maximum number of entries to list (0 for all)")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statsOutput)
	if err != nil {
		return err
	}
	if statsLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	client, err := newClient(statsServer)
	if err != nil {
		return err
	}
	dump, err := client.Debug(statsLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch statistics from %s: %w", client.BaseURL(), err)
	}

	printer := output.NewPrinter(os.Stdout, format, isTerminal(os.Stdout))
	if format == output.FormatTable {
		return printer.Print(debugView{dump})
	}
	return printer.Print(dump)
}
