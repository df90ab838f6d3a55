package commands

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/causeway-data/causeway/config"
	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/errors"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show, write, and validate configuration",
	Long: `Manage the causeway configuration.

Configuration merges from /etc/causeway/config.toml, ~/.causeway/config.toml,
the nearest causeway.toml found walking up from the working directory, and
CAUSEWAY_* environment variables, in that order. The global --config flag
bypasses the cascade and loads one file directly.

Examples:
  causeway config show                  # Effective merged configuration
  causeway config show --format yaml    # As YAML
  causeway config init                  # Write ./causeway.toml with defaults
  causeway config validate              # Check the effective configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration as the process would see it, defaults and every
override merged. The output is shown even when it would fail validation, so
a broken setup can be inspected.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

var (
	configFormatFlag string
	configPathFlag   string
	configForceFlag  bool
)

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVar(&configFormatFlag, "format", "toml", "Output format: toml, yaml, or json")
	configShowCmd.Flags().Bool("json", false, "Output results as JSON")
	configInitCmd.Flags().StringVar(&configPathFlag, "path", config.ProjectConfigName, "Where to write the file")
	configInitCmd.Flags().BoolVar(&configForceFlag, "force", false, "Replace an existing file (a backup is kept)")
	configValidateCmd.Flags().Bool("json", false, "Output results as JSON")
}

// rawConfig loads configuration without validating it, honoring the global
// --config flag.
func rawConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Root().PersistentFlags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := rawConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cfg)
	}

	switch configFormatFlag {
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "marshaling config")
		}
		fmt.Print(string(data))
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "marshaling config")
		}
		fmt.Print(string(data))
	case "json":
		return display.OutputJSON(cfg)
	default:
		return errors.Newf("unknown format %q (want toml, yaml, or json)", configFormatFlag)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPathFlag); err == nil && !configForceFlag {
		return errors.Newf("%s already exists; pass --force to replace it", configPathFlag)
	}

	if err := config.Save(config.Default(), configPathFlag); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", configPathFlag)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := rawConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(map[string]string{"valid": "false", "error": err.Error()})
		}
		pterm.Error.Printf("Configuration is invalid: %v\n", err)
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]string{"valid": "true"})
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}
