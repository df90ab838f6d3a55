package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/ingest"
	"github.com/causeway-data/causeway/logger"
)

// SeedCmd represents the seed command
var SeedCmd = &cobra.Command{
	Use:   "seed <bundle-dir>",
	Short: "Apply a seed bundle to the store",
	Long: `Apply a seed bundle: a directory of CSV exports plus a seed.toml manifest
naming the type, id, stamp, and optional hub of each one.

By default every entry is stored, replacing whatever the store already holds
at the same key. With --enrich only missing keys are added and existing
artifacts stay untouched. One bad entry does not stop the rest; all outcomes
are reported and the command fails when any entry failed.

Examples:
  causeway seed ./fixtures/initial          # Populate, replacing existing keys
  causeway seed ./fixtures/initial --enrich # Only add what is missing
  causeway seed ./fixtures/initial --json   # Machine-readable outcomes`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

var seedEnrichFlag bool

func init() {
	SeedCmd.Flags().BoolVar(&seedEnrichFlag, "enrich", false, "Only add entries whose keys are not stored yet")
	SeedCmd.Flags().Bool("json", false, "Output results as JSON")
}

// seedEntryOutcome is one seed entry's result in output form.
type seedEntryOutcome struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Stamp  string `json:"stamp"`
	Hub    string `json:"hub,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	dir := args[0]
	useJSON := display.ShouldOutputJSON(cmd)

	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	bundle, err := ingest.LoadSeedBundle(dir)
	if err != nil {
		return err
	}

	var spinner *pterm.SpinnerPrinter
	if !useJSON {
		spinner, _ = pterm.DefaultSpinner.Start(fmt.Sprintf("Applying %d seed entries...", len(bundle.Entries)))
	}

	accessor := ingest.NewAccessor(e.store, logger.Logger)
	var outcomes []ingest.SeedOutcome
	if seedEnrichFlag {
		outcomes, err = accessor.EnrichFromSeed(cmd.Context(), bundle)
	} else {
		outcomes, err = accessor.PopulateFromSeed(cmd.Context(), bundle)
	}
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	var added, skipped, failed int
	views := make([]seedEntryOutcome, 0, len(outcomes))
	for _, out := range outcomes {
		view := seedEntryOutcome{
			Type:   out.Entry.Type,
			ID:     out.Entry.ID,
			Stamp:  out.Entry.Stamp,
			Hub:    out.Entry.Hub,
			Status: string(out.Status),
		}
		switch out.Status {
		case ingest.SeedAdded:
			added++
		case ingest.SeedSkipped:
			skipped++
		case ingest.SeedFailed:
			failed++
			view.Error = out.Err.Error()
		}
		views = append(views, view)
	}

	if useJSON {
		if err := display.OutputJSON(views); err != nil {
			return err
		}
	} else {
		if added > 0 {
			pterm.Success.Printf("Added %d artifacts from %s\n", added, dir)
		}
		if skipped > 0 {
			pterm.Info.Printf("Skipped %d entries already stored\n", skipped)
		}
		for _, v := range views {
			if v.Error != "" {
				pterm.Error.Printf("%s/%s@%s: %s\n", v.Type, v.ID, v.Stamp, v.Error)
			}
		}
	}

	if failed > 0 {
		return errors.Newf("%d of %d seed entries failed", failed, len(outcomes))
	}
	return nil
}
