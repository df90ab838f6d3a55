package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/manifest"
)

// ResolveCmd represents the resolve command
var ResolveCmd = &cobra.Command{
	Use:   "resolve <hub> <type> <id> <stamp>",
	Short: "Derive the storage address of an artifact",
	Long: `Derive the hub-relative storage address of an artifact.

Addresses are a pure function of the hub path, the type's filename pattern,
the logical id, and the stamp. Resolution needs only the manifest; whether
an artifact actually sits at the address is a question for ls and show.

Examples:
  causeway resolve raw work_items ProductX 230421
  causeway resolve raw work_items ProductX APR21 --json`,
	Args: cobra.ExactArgs(4),
	RunE: runResolve,
}

func init() {
	ResolveCmd.Flags().Bool("json", false, "Output results as JSON")
}

// resolution is a derived artifact address.
type resolution struct {
	Hub     string `json:"hub"`
	Type    string `json:"type"`
	ID      string `json:"id"`
	Stamp   string `json:"stamp"`
	Address string `json:"address"`
	AbsPath string `json:"abs_path,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	nodePath, typeName, logicalID := args[0], args[1], args[2]
	at, err := stampArg(args[3])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	bundle, err := manifest.Load(cfg.Paths.Manifest)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	addr, err := bundle.Taxonomy.Resolve(nodePath, typeName, logicalID, at)
	if err != nil {
		return err
	}

	res := resolution{
		Hub:     nodePath,
		Type:    typeName,
		ID:      logicalID,
		Stamp:   at.String(),
		Address: addr.String(),
		AbsPath: filepath.Join(cfg.Paths.HubRoot, filepath.FromSlash(addr.String())),
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(res)
	}

	fmt.Println(res.Address)
	return nil
}
