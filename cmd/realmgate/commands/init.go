package commands

import (
	"fmt"
	"os"

	"github.com/fzdarsky/realmgate/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with every default filled in.

Examples:
  # Initialize at the default location
  realmgate init

  # Initialize at a custom path
  realmgate init --config ./realmgate.yaml

  # Overwrite an existing file
  realmgate init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	fmt.Fprintf(out, "  2. Add a realm: realmgate realm add --config %s --name MyRealm --address 203.0.113.10\n", path)
	fmt.Fprintf(out, "  3. Create an account: realmgate account create --config %s <name> <password>\n", path)
	fmt.Fprintf(out, "  4. Start the gateway: realmgate serve --config %s\n", path)
	return nil
}
