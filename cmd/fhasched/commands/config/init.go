package config

import (
	"fmt"
	"os"

	"github.com/marmos91/fhasched/internal/cli/prompt"
	"github.com/marmos91/fhasched/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the defaults",
	Long: `Create an fhasched configuration file populated with the defaults.

By default, the file is created at $XDG_CONFIG_HOME/fhasched/config.yaml.
Use --config to specify a custom path. If the file exists you are asked
before it is overwritten; --force skips the question.

Examples:
  # Initialize with default location
  fhasched config init

  # Initialize with custom path
  fhasched config init --config /etc/fhasched/config.yaml

  # Overwrite without asking
  fhasched config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file without asking")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	force := false
	if _, err := os.Stat(path); err == nil {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s", path), initForce)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Aborted.")
				return nil
			}
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
		force = true
	}

	if err := config.InitConfigToPath(path, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the scheduler and workload sections to match your setup")
	fmt.Println("  2. Try the scheduler with: fhasched simulate")
	fmt.Printf("  3. Or serve it with:       fhasched serve --config %s\n", path)
	return nil
}
