package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/fhasched/internal/cli/output"
	"github.com/marmos91/fhasched/internal/cli/prompt"
	"github.com/marmos91/fhasched/pkg/apiclient"
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/spf13/cobra"
)

var (
	tunablesServer string
	tunablesOutput string

	setInteractive bool
	setEnabled     bool
	setBinShift    uint
	setMaxThreads  int
	setMaxReqs     int
	setMaxEntries  int
	setIdleScan    int
)

var tunablesCmd = &cobra.Command{
	Use:   "tunables",
	Short: "Show or change the scheduler tunables of a running instance",
	Long: `Show the live file-handle affinity tunables of a running instance.

Use "fhasched tunables set" to change them. Changes apply to the next
scheduling decision and are not written back to the configuration file.

Examples:
  fhasched tunables
  fhasched tunables -o yaml`,
	Args: cobra.NoArgs,
	RunE: runTunablesGet,
}

var tunablesSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change scheduler tunables",
	Long: `Change the live file-handle affinity tunables of a running instance.

Only the flags given are sent; the others keep their current value. For
max-threads-per-file, max-reqs-per-thread and max-entries, 0 means no limit.
An idle-scan-limit of 0 scans the whole pool.

Examples:
  # Turn affinity scheduling off
  fhasched tunables set --enabled=false

  # 1MiB locality bins and at most two workers per file
  fhasched tunables set --bin-shift 20 --max-threads-per-file 2

  # Prompt for every value
  fhasched tunables set --interactive`,
	Args: cobra.NoArgs,
	RunE: runTunablesSet,
}

func init() {
	addServerFlag(tunablesCmd, &tunablesServer)
	tunablesCmd.PersistentFlags().StringVarP(&tunablesOutput, "output", "o", "table", "Output format (table|json|yaml)")

	f := tunablesSetCmd.Flags()
	addServerFlag(tunablesSetCmd, &tunablesServer)
	f.BoolVarP(&setInteractive, "interactive", "i", false, "Prompt for each tunable")
	f.BoolVar(&setEnabled, "enabled", true, "Enable affinity scheduling")
	f.UintVar(&setBinShift, "bin-shift", fha.DefaultBinShift, "Read locality bin size as a power of two")
	f.IntVar(&setMaxThreads, "max-threads-per-file", fha.DefaultMaxThreadsPerFile, "Workers bound per file (0 for unlimited)")
	f.IntVar(&setMaxReqs, "max-reqs-per-thread", fha.DefaultMaxReqsPerThread, "In-flight calls above which locality is ignored (0 for unlimited)")
	f.IntVar(&setMaxEntries, "max-entries", 0, "Bound on tracked files (0 for unlimited)")
	f.IntVar(&setIdleScan, "idle-scan-limit", 0, "Workers inspected when looking for an idle one (0 for all)")

	tunablesCmd.AddCommand(tunablesSetCmd)
}

func runTunablesGet(cmd *cobra.Command, args []string) error {
	client, err := newClient(tunablesServer)
	if err != nil {
		return err
	}
	t, err := client.Tunables()
	if err != nil {
		return fmt.Errorf("failed to fetch tunables from %s: %w", client.BaseURL(), err)
	}
	return printTunables(*t)
}

func runTunablesSet(cmd *cobra.Command, args []string) error {
	client, err := newClient(tunablesServer)
	if err != nil {
		return err
	}

	var update apiclient.TunablesUpdate
	if setInteractive {
		current, err := client.Tunables()
		if err != nil {
			return fmt.Errorf("failed to fetch tunables from %s: %w", client.BaseURL(), err)
		}
		update, err = promptTunables(*current)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Aborted.")
				return nil
			}
			return err
		}
	} else {
		update = tunablesFromFlags(cmd)
	}

	if update.Empty() {
		if setInteractive {
			fmt.Println("No changes.")
			return nil
		}
		return fmt.Errorf("nothing to change: pass at least one tunable flag or --interactive")
	}

	t, err := client.SetTunables(update)
	if err != nil {
		return fmt.Errorf("failed to update tunables: %w", err)
	}
	return printTunables(*t)
}

// tunablesFromFlags builds an update from the flags that were set.
func tunablesFromFlags(cmd *cobra.Command) apiclient.TunablesUpdate {
	f := cmd.Flags()
	var u apiclient.TunablesUpdate
	if f.Changed("enabled") {
		u.Enabled = &setEnabled
	}
	if f.Changed("bin-shift") {
		u.BinShift = &setBinShift
	}
	if f.Changed("max-threads-per-file") {
		u.MaxThreadsPerFile = &setMaxThreads
	}
	if f.Changed("max-reqs-per-thread") {
		u.MaxReqsPerThread = &setMaxReqs
	}
	if f.Changed("max-entries") {
		u.MaxEntries = &setMaxEntries
	}
	if f.Changed("idle-scan-limit") {
		u.IdleScanLimit = &setIdleScan
	}
	return u
}

// promptTunables asks for every tunable, pre-filled with the current value,
// and returns only the ones that changed.
func promptTunables(cur fha.Tunables) (apiclient.TunablesUpdate, error) {
	var u apiclient.TunablesUpdate

	enabled, err := prompt.InputBool("Enabled", cur.Enabled)
	if err != nil {
		return u, err
	}
	shift, err := prompt.InputInt("Bin shift", int(cur.BinShift), 0)
	if err != nil {
		return u, err
	}
	threads, err := prompt.InputInt("Max threads per file (0 = unlimited)", cur.MaxThreadsPerFile, 0)
	if err != nil {
		return u, err
	}
	reqs, err := prompt.InputInt("Max requests per thread (0 = unlimited)", cur.MaxReqsPerThread, 0)
	if err != nil {
		return u, err
	}
	entries, err := prompt.InputInt("Max entries (0 = unlimited)", cur.MaxEntries, 0)
	if err != nil {
		return u, err
	}
	scan, err := prompt.InputInt("Idle scan limit (0 = whole pool)", cur.IdleScanLimit, 0)
	if err != nil {
		return u, err
	}

	if enabled != cur.Enabled {
		u.Enabled = &enabled
	}
	if s := uint(shift); s != cur.BinShift {
		u.BinShift = &s
	}
	if threads != cur.MaxThreadsPerFile {
		u.MaxThreadsPerFile = &threads
	}
	if reqs != cur.MaxReqsPerThread {
		u.MaxReqsPerThread = &reqs
	}
	if entries != cur.MaxEntries {
		u.MaxEntries = &entries
	}
	if scan != cur.IdleScanLimit {
		u.IdleScanLimit = &scan
	}
	return u, nil
}

func printTunables(t fha.Tunables) error {
	format, err := output.ParseFormat(tunablesOutput)
	if err != nil {
		return err
	}
	printer := output.NewPrinter(os.Stdout, format, isTerminal(os.Stdout))
	if format == output.FormatTable {
		return printer.Print(tunablesView(t))
	}
	return printer.Print(t)
}
