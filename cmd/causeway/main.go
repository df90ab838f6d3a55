package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/cmd/causeway/commands"
	"github.com/causeway-data/causeway/config"
	"github.com/causeway-data/causeway/logger"
)

var rootCmd = &cobra.Command{
	Use:   "causeway",
	Short: "Causeway - temporal object store and recomputation engine",
	Long: `Causeway - versioned tabular artifacts with day-stamped history.

Causeway stores every artifact as a CSV blob at a hub-resolved address plus
a row in the SQLite version index, so "the work items as of April 20" is a
lookup, not a guess. The hub taxonomy, data types, and workflow steps are
declared in an HCL manifest.

Available commands:
  validate - Load the manifest and run every registration-time check
  types    - List the declared data types
  hubs     - List the hub taxonomy
  resolve  - Derive the storage address of an artifact
  ls       - List an object's version history
  show     - Show one artifact: index row and table head
  runs     - List run reports
  seed     - Apply a seed bundle to the store
  snapshot - Freeze a hub's state at a stamp into a side tree
  watch    - Watch the drop directory and file exports into the store
  config   - Show, write, and validate configuration
  version  - Show build information

Examples:
  causeway validate                          # Check the manifest
  causeway ls raw work_items ProductX        # Version history
  causeway show raw work_items ProductX 230421 --at-or-before
  causeway snapshot raw 230420               # Freeze raw@230420 as APR20
  causeway runs 230421                       # Run reports for one stamp`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")

		// logging.json comes from config when one loads; commands that run
		// without configuration still get the console logger.
		jsonLogs := false
		if cfg, err := config.Load(); err == nil {
			jsonLogs = cfg.Logging.JSON
		}
		if err := logger.InitializeWithVerbosity(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")
	rootCmd.PersistentFlags().String("config", "", "Load this config file instead of the cascade")

	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.TypesCmd)
	rootCmd.AddCommand(commands.HubsCmd)
	rootCmd.AddCommand(commands.ResolveCmd)
	rootCmd.AddCommand(commands.LsCmd)
	rootCmd.AddCommand(commands.ShowCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.SeedCmd)
	rootCmd.AddCommand(commands.SnapshotCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
