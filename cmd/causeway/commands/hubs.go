package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/hub"
	"github.com/causeway-data/causeway/manifest"
)

// HubsCmd represents the hubs command
var HubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "List the hub taxonomy",
	Long: `List the hub taxonomy the manifest declares.

Hubs form a tree; each node hosts zero or more data types and owns the
subtree of storage addresses below its path. The listing shows the tree in
declaration order with each node's hosted types.

Examples:
  causeway hubs           # Show the hub tree
  causeway hubs --json    # Machine-readable listing`,
	RunE: runHubs,
}

func init() {
	HubsCmd.Flags().Bool("json", false, "Output results as JSON")
}

// hubSummary is one taxonomy node in listing form.
type hubSummary struct {
	Path  string   `json:"path"`
	Hosts []string `json:"hosts,omitempty"`
}

func runHubs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	bundle, err := manifest.Load(cfg.Paths.Manifest)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	var summaries []hubSummary
	_ = bundle.Taxonomy.Walk(func(n *hub.Node) error {
		summaries = append(summaries, hubSummary{Path: n.Path(), Hosts: n.Hosts()})
		return nil
	})

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(summaries)
	}

	if len(summaries) == 0 {
		pterm.Warning.Println("The manifest declares no hubs")
		return nil
	}

	pterm.Info.Printf("%d hub nodes declared\n", len(summaries))
	fmt.Println()
	for _, s := range summaries {
		depth := strings.Count(s.Path, "/")
		indent := strings.Repeat("  ", depth)
		name := s.Path
		if i := strings.LastIndex(s.Path, "/"); i >= 0 {
			name = s.Path[i+1:]
		}
		if len(s.Hosts) > 0 {
			fmt.Printf("%s%s  (hosts: %s)\n", indent, name, strings.Join(s.Hosts, ", "))
		} else {
			fmt.Printf("%s%s\n", indent, name)
		}
	}
	return nil
}
