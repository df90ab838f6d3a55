package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/store"
	"github.com/causeway-data/causeway/tabular"
)

// ShowCmd represents the show command
var ShowCmd = &cobra.Command{
	Use:   "show <hub> <type> <id> <stamp>",
	Short: "Show one artifact: index row and table head",
	Long: `Show one stored artifact: its index row and the head of its table.

By default the stamp must match a stored version exactly. With
--at-or-before the newest version at or before the stamp is shown instead,
which is the resolution rule workflow inputs use.

Examples:
  causeway show raw work_items ProductX 230421
  causeway show raw work_items ProductX 230421 --at-or-before
  causeway show raw work_items ProductX APR21 --rows 25
  causeway show raw work_items ProductX 230421 --json`,
	Args: cobra.ExactArgs(4),
	RunE: runShow,
}

var (
	showAtOrBeforeFlag bool
	showRowsFlag       int
)

func init() {
	ShowCmd.Flags().BoolVar(&showAtOrBeforeFlag, "at-or-before", false, "Show the newest version at or before the stamp")
	ShowCmd.Flags().IntVar(&showRowsFlag, "rows", 10, "Number of table rows to show (0 for none, -1 for all)")
	ShowCmd.Flags().Bool("json", false, "Output results as JSON")
}

// artifactView is one artifact in output form.
type artifactView struct {
	Hub       string     `json:"hub"`
	Type      string     `json:"type"`
	ID        string     `json:"id"`
	Stamp     string     `json:"stamp"`
	Address   string     `json:"address"`
	Digest    string     `json:"digest"`
	SizeBytes int64      `json:"size_bytes"`
	CreatedAt time.Time  `json:"created_at"`
	Columns   []string   `json:"columns"`
	NumRows   int        `json:"num_rows"`
	Rows      [][]string `json:"rows,omitempty"`
}

func runShow(cmd *cobra.Command, args []string) error {
	nodePath := args[0]
	obj := store.Object{TypeName: args[1], LogicalID: args[2]}
	at, err := stampArg(args[3])
	if err != nil {
		return err
	}

	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	var art *store.Artifact
	if showAtOrBeforeFlag {
		art, err = e.store.GetLatestAtOrBefore(cmd.Context(), nodePath, obj, at)
	} else {
		art, err = e.store.Get(cmd.Context(), nodePath, obj, at)
	}
	if err != nil {
		return err
	}

	view := artifactView{
		Hub:       art.Node,
		Type:      art.Object.TypeName,
		ID:        art.Object.LogicalID,
		Stamp:     art.Stamp.String(),
		Address:   art.Address.String(),
		Digest:    art.Digest,
		SizeBytes: art.SizeBytes,
		CreatedAt: art.CreatedAt,
		Columns:   art.Table.Columns(),
		NumRows:   art.Table.NumRows(),
	}
	for r := 0; r < headRows(art.Table, showRowsFlag); r++ {
		view.Rows = append(view.Rows, art.Table.Row(r))
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(view)
	}

	pterm.Info.Printf("%s@%s\n", art.Object, art.Stamp)
	fmt.Printf("  Hub:      %s\n", view.Hub)
	fmt.Printf("  Address:  %s\n", view.Address)
	fmt.Printf("  Digest:   %s\n", view.Digest)
	fmt.Printf("  Size:     %d bytes\n", view.SizeBytes)
	fmt.Printf("  Stored:   %s\n", view.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Table:    %d columns, %d rows\n", len(view.Columns), view.NumRows)

	if len(view.Rows) > 0 {
		fmt.Println()
		printHead(art.Table, len(view.Rows))
		if view.NumRows > len(view.Rows) {
			fmt.Printf("  ... %d more rows\n", view.NumRows-len(view.Rows))
		}
	}
	return nil
}

// headRows clamps the --rows flag against the table: negative means every
// row, zero means none.
func headRows(tbl *tabular.Table, limit int) int {
	if limit < 0 || limit > tbl.NumRows() {
		return tbl.NumRows()
	}
	return limit
}

// printHead renders the first n rows with columns padded to their widest
// cell.
func printHead(tbl *tabular.Table, n int) {
	cols := tbl.Columns()
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for r := 0; r < n; r++ {
		for i, cell := range tbl.Row(r) {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, c := range cols {
		fmt.Fprintf(&b, "  %-*s", widths[i], c)
	}
	fmt.Println(b.String())

	b.Reset()
	for i := range cols {
		fmt.Fprintf(&b, "  %s", strings.Repeat("-", widths[i]))
	}
	fmt.Println(b.String())

	for r := 0; r < n; r++ {
		b.Reset()
		for i, cell := range tbl.Row(r) {
			fmt.Fprintf(&b, "  %-*s", widths[i], cell)
		}
		fmt.Println(b.String())
	}
}
