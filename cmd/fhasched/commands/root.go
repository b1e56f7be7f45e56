// Package commands implements the fhasched command line.
package commands

import (
	"github.com/marmos91/fhasched/cmd/fhasched/commands/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fhasched",
	Short: "fhasched - File-handle affinity scheduling for NFS service pools",
	Long: `fhasched runs an NFSv3 service pool whose dispatch loop routes each call
to a worker chosen by file-handle affinity: writes to a file funnel onto one
worker, sequential reads stay with the worker that last read the same region,
and additional workers join a busy file only while the per-file limits allow.

Use "fhasched simulate" to drive the scheduler with a synthetic workload,
"fhasched serve" to run it with the admin API, and "fhasched stats" or
"fhasched tunables" to inspect and tune a running instance.

Use "fhasched [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/fhasched/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(tunablesCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
