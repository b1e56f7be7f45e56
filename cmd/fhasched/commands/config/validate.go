package config

import (
	"fmt"

	"github.com/marmos91/fhasched/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the fhasched configuration file.

Checks for syntax errors, missing required fields, and invalid values, then
prints the scheduler settings the file resolves to.

Examples:
  # Validate default config
  fhasched config validate

  # Validate specific config file
  fhasched config validate --config /etc/fhasched/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}

	displayPath := path
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	tun, err := cfg.Scheduler.Tunables()
	if err != nil {
		return err
	}

	var warnings []string
	if !tun.Enabled {
		warnings = append(warnings, "Affinity scheduling is disabled - every call runs on the worker that dequeued it")
	}
	if tun.MaxThreadsPerFile == 0 && tun.MaxReqsPerThread == 0 {
		warnings = append(warnings, "Both per-file limits are unlimited - a single busy file can occupy every worker")
	}
	if tun.MaxEntries == 0 {
		warnings = append(warnings, "scheduler.max_entries is unlimited - the table grows with the number of active files")
	}
	if !cfg.API.IsEnabled() {
		warnings = append(warnings, "Admin API disabled - 'fhasched stats' and 'fhasched tunables' will not reach this instance")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Workers:              %d\n", cfg.Pool.Workers)
	fmt.Printf("  FHA enabled:          %t\n", tun.Enabled)
	fmt.Printf("  Bin size:             %d bytes (shift %d)\n", uint64(1)<<tun.BinShift, tun.BinShift)
	fmt.Printf("  Max threads per file: %s\n", limit(tun.MaxThreadsPerFile))
	fmt.Printf("  Max reqs per thread:  %s\n", limit(tun.MaxReqsPerThread))
	fmt.Printf("  API port:             %d\n", cfg.API.Port)
	fmt.Printf("  Log level:            %s\n", cfg.Logging.Level)
	return nil
}

func limit(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
