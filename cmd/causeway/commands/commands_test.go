package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-data/causeway/flow"
	"github.com/causeway-data/causeway/manifest"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/tabular"
)

// newTestCmd builds a command carrying the persistent flags the root
// defines, so the config helpers see the same flag surface they do in the
// binary.
func newTestCmd(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "causeway"}
	cmd.PersistentFlags().CountP("verbose", "v", "")
	cmd.PersistentFlags().Bool("json", false, "")
	cmd.PersistentFlags().String("config", "", "")
	return cmd
}

func TestStampArgAcceptsEverySpelling(t *testing.T) {
	want := stamp.MustParse("230421")

	tests := []struct {
		name string
		raw  string
	}{
		{"wire form", "230421"},
		{"dashed", "23-04-21"},
		{"serial", fmt.Sprintf("%d", want.Serial())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stampArg(tt.raw)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s", got)
		})
	}
}

func TestStampArgResolvesSnapshotLabels(t *testing.T) {
	got, err := stampArg("APR21")
	require.NoError(t, err)

	assert.Equal(t, time.April, got.Month())
	assert.Equal(t, 21, got.Day())
	assert.Equal(t, time.Now().Year(), got.Year())
}

func TestStampArgRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "tomorrow", "2023-04-21", "APRIL21"} {
		_, err := stampArg(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestLoadConfigHonorsConfigFlag(t *testing.T) {
	t.Cleanup(stamp.ClearForcedToday)

	dir := t.TempDir()
	path := filepath.Join(dir, "causeway.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[paths]
hub_root = "/srv/causeway/hub"

[runtime]
forced_today = "230419"
`), 0o644))

	cmd := newTestCmd(t)
	require.NoError(t, cmd.PersistentFlags().Set("config", path))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "/srv/causeway/hub", cfg.Paths.HubRoot)
	// Unset keys fall back to defaults.
	assert.Equal(t, 4, cfg.Run.Workers)
	// runtime.forced_today pins the process clock.
	assert.Equal(t, "230419", stamp.Today().String())
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "causeway.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[run]
workers = 0
`), 0o644))

	cmd := newTestCmd(t)
	require.NoError(t, cmd.PersistentFlags().Set("config", path))

	_, err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run.workers")
}

func TestHeadRowsClampsLimit(t *testing.T) {
	tbl, err := tabular.New([]string{"Task"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, tbl.AppendRow([]string{fmt.Sprintf("Task%d", i)}))
	}

	assert.Equal(t, 5, headRows(tbl, -1))
	assert.Equal(t, 0, headRows(tbl, 0))
	assert.Equal(t, 3, headRows(tbl, 3))
	assert.Equal(t, 5, headRows(tbl, 99))
}

func TestSummarizeRunCountsStepOutcomes(t *testing.T) {
	started := time.Date(2023, 4, 21, 9, 0, 0, 0, time.UTC)
	report := &flow.RunReport{
		RunID:      "2Yx7",
		Stamp:      stamp.MustParse("230421"),
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Verdict:    flow.VerdictPartial,
		Steps: []flow.StepOutcome{
			{Step: "a", Status: flow.StatusSucceeded},
			{Step: "b", Status: flow.StatusSucceeded},
			{Step: "c", Status: flow.StatusFailed},
			{Step: "d", Status: flow.StatusSkipped},
		},
	}

	s := summarizeRun("_runs/230421/2Yx7.yaml", report)

	assert.Equal(t, "2Yx7", s.RunID)
	assert.Equal(t, "230421", s.Stamp)
	assert.Equal(t, "partial", s.Verdict)
	assert.Equal(t, "1.5s", s.Duration)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
}

func TestSummarizeTypeListsHosts(t *testing.T) {
	bundle, err := manifest.LoadBytes([]byte(`
causeway_version = "1.0.0"

type "work_items" {
  required_columns  = ["Task", "Estimate"]
  annotated_columns = ["Re-route to"]
  row_key           = ["Task"]
  kinds             = { Estimate = "number" }
  filename_pattern  = "{id.snake}.{stamp}.csv"
}

hub "raw" {
  hosts = ["work_items"]

  hub "mirror" {
    hosts = ["work_items"]
  }
}
`), "test.hcl")
	require.NoError(t, err)

	def, err := bundle.Registry.Type("work_items")
	require.NoError(t, err)

	s := summarizeType(bundle, def)

	assert.Equal(t, "work_items", s.Name)
	assert.Equal(t, []string{"Task", "Estimate"}, s.RequiredColumns)
	assert.Equal(t, []string{"Re-route to"}, s.AnnotatedColumns)
	assert.Equal(t, []string{"Task"}, s.RowKey)
	assert.Equal(t, map[string]string{"Estimate": "number"}, s.Kinds)
	assert.Equal(t, "{id.snake}.{stamp}.csv", s.FilenamePattern)
	assert.Equal(t, []string{"raw", "raw/mirror"}, s.HostedBy)
}
