package commands

import (
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/flow"
	"github.com/causeway-data/causeway/logger"
	"github.com/causeway-data/causeway/stamp"
)

// RunsCmd represents the runs command
var RunsCmd = &cobra.Command{
	Use:   "runs [stamp]",
	Short: "List run reports",
	Long: `List the run reports persisted under the hub root, newest stamp first.

Every workflow run writes a YAML report under _runs/<stamp>/. With a stamp
argument only that day's runs are listed.

Examples:
  causeway runs                  # Most recent runs across all stamps
  causeway runs 230421           # Runs stamped 230421
  causeway runs --limit 5        # Only the five newest
  causeway runs --json           # Machine-readable listing`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

var runsLimitFlag int

func init() {
	RunsCmd.Flags().IntVar(&runsLimitFlag, "limit", 20, "Number of reports to show (-1 for all)")
	RunsCmd.Flags().Bool("json", false, "Output results as JSON")
}

// runSummary is one run report in listing form.
type runSummary struct {
	Path      string `json:"path"`
	RunID     string `json:"run_id"`
	Stamp     string `json:"stamp"`
	Verdict   string `json:"verdict"`
	StartedAt string `json:"started_at"`
	Duration  string `json:"duration"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var filter *stamp.Stamp
	if len(args) == 1 {
		at, err := stampArg(args[0])
		if err != nil {
			return err
		}
		filter = &at
	}

	// Reports live on the hub root filesystem; no index database involved.
	writer := flow.NewReportWriter(osfs.New(cfg.Paths.HubRoot), logger.Logger)
	paths, err := writer.List(filter)
	if err != nil {
		return err
	}
	if runsLimitFlag >= 0 && len(paths) > runsLimitFlag {
		paths = paths[:runsLimitFlag]
	}

	summaries := make([]runSummary, 0, len(paths))
	for _, p := range paths {
		report, err := writer.Read(p)
		if err != nil {
			return err
		}
		summaries = append(summaries, summarizeRun(p, report))
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(summaries)
	}

	if len(summaries) == 0 {
		if filter != nil {
			pterm.Warning.Printf("No run reports for %s\n", filter)
		} else {
			pterm.Warning.Println("No run reports yet")
		}
		return nil
	}

	pterm.Info.Printf("%d run reports\n", len(summaries))
	for _, s := range summaries {
		verdict := s.Verdict
		switch flow.Verdict(s.Verdict) {
		case flow.VerdictSucceeded:
			verdict = pterm.Green(s.Verdict)
		case flow.VerdictFailed:
			verdict = pterm.Red(s.Verdict)
		default:
			verdict = pterm.Yellow(s.Verdict)
		}
		fmt.Printf("  %s  %s  %-9s  %s  (%d ok, %d failed, %d skipped)\n",
			s.Stamp, s.RunID, verdict, s.Duration, s.Succeeded, s.Failed, s.Skipped)
	}
	return nil
}

func summarizeRun(path string, report *flow.RunReport) runSummary {
	s := runSummary{
		Path:      path,
		RunID:     report.RunID,
		Stamp:     report.Stamp.String(),
		Verdict:   string(report.Verdict),
		StartedAt: report.StartedAt.Format(time.RFC3339),
		Duration:  report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String(),
	}
	for _, step := range report.Steps {
		switch step.Status {
		case flow.StatusSucceeded:
			s.Succeeded++
		case flow.StatusFailed:
			s.Failed++
		case flow.StatusSkipped:
			s.Skipped++
		}
	}
	return s
}
