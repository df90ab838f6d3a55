package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/store"
)

// LsCmd represents the ls command
var LsCmd = &cobra.Command{
	Use:   "ls <hub> <type> <id>",
	Short: "List an object's version history",
	Long: `List the stamps at which an object has stored versions, oldest first.

Every line is one artifact: the YYMMDD wire form, the dashed form, and the
snapshot label the stamp resolves from.

Examples:
  causeway ls raw work_items ProductX
  causeway ls raw work_items ProductX --json`,
	Args: cobra.ExactArgs(3),
	RunE: runLs,
}

func init() {
	LsCmd.Flags().Bool("json", false, "Output results as JSON")
}

// versionHistory is an object's stored stamps in listing form.
type versionHistory struct {
	Hub    string   `json:"hub"`
	Type   string   `json:"type"`
	ID     string   `json:"id"`
	Stamps []string `json:"stamps"`
}

func runLs(cmd *cobra.Command, args []string) error {
	nodePath := args[0]
	obj := store.Object{TypeName: args[1], LogicalID: args[2]}

	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	stamps, err := e.store.ListStamps(cmd.Context(), nodePath, obj)
	if err != nil {
		return err
	}

	history := versionHistory{Hub: nodePath, Type: obj.TypeName, ID: obj.LogicalID, Stamps: make([]string, 0, len(stamps))}
	for _, at := range stamps {
		history.Stamps = append(history.Stamps, at.String())
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(history)
	}

	if len(stamps) == 0 {
		pterm.Warning.Printf("No versions of %s under %q\n", obj, nodePath)
		return nil
	}

	pterm.Info.Printf("%d versions of %s under %q\n", len(stamps), obj, nodePath)
	for _, at := range stamps {
		fmt.Printf("  %s  %s  %s\n", at.String(), at.Dashed(), at.SnapshotLabel())
	}
	return nil
}
