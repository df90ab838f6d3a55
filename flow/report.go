package flow

import (
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/stamp"
)

// Status is a step's final state within one run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Verdict is the run-level outcome.
type Verdict string

const (
	// VerdictSucceeded: every step succeeded.
	VerdictSucceeded Verdict = "succeeded"
	// VerdictPartial: a mix; at least one step succeeded, or nothing ran
	// but nothing failed either.
	VerdictPartial Verdict = "partial"
	// VerdictFailed: at least one step failed and none succeeded.
	VerdictFailed Verdict = "failed"
)

// StepOutcome records how one step ended. Error is set for failures,
// Reason for skips.
type StepOutcome struct {
	Step       string   `yaml:"step"`
	Status     Status   `yaml:"status"`
	DurationMS int64    `yaml:"duration_ms"`
	Output     string   `yaml:"output,omitempty"`
	Error      string   `yaml:"error,omitempty"`
	Reason     string   `yaml:"reason,omitempty"`
	Warnings   []string `yaml:"warnings,omitempty"`
}

// RunReport is the durable record of one run, persisted as YAML under the
// hub root.
type RunReport struct {
	RunID      string        `yaml:"run_id"`
	Stamp      stamp.Stamp   `yaml:"stamp"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	Verdict    Verdict       `yaml:"verdict"`
	Steps      []StepOutcome `yaml:"steps"`
}

// verdictOf folds step outcomes into the run verdict.
func verdictOf(steps []StepOutcome) Verdict {
	var succeeded, failed int
	for _, s := range steps {
		switch s.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		}
	}
	switch {
	case succeeded == len(steps) && len(steps) > 0:
		return VerdictSucceeded
	case succeeded == 0 && failed > 0:
		return VerdictFailed
	default:
		return VerdictPartial
	}
}

// runsDir is the reserved hub-root directory for run reports. Node names
// starting with "_" cannot collide with it.
const runsDir = "_runs"

// ReportWriter persists and reads run reports under <hub root>/_runs/.
type ReportWriter struct {
	fs     billy.Filesystem
	logger *zap.SugaredLogger
}

// NewReportWriter creates a writer over the hub root filesystem.
func NewReportWriter(fs billy.Filesystem, logger *zap.SugaredLogger) *ReportWriter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ReportWriter{fs: fs, logger: logger}
}

// Write persists the report as _runs/<stamp>/<run id>.yaml and returns the
// path.
func (w *ReportWriter) Write(report *RunReport) (string, error) {
	if report == nil {
		return "", errors.New("cannot persist a nil run report")
	}
	dir := path.Join(runsDir, report.Stamp.String())
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating run report directory %q", dir)
	}

	raw, err := yaml.Marshal(report)
	if err != nil {
		return "", errors.Wrapf(err, "encoding run report %s", report.RunID)
	}
	p := path.Join(dir, report.RunID+".yaml")
	if err := util.WriteFile(w.fs, p, raw, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing run report %q", p)
	}

	w.logger.Debugw("run report written", "path", p, "verdict", report.Verdict)
	return p, nil
}

// Read loads one report by path.
func (w *ReportWriter) Read(p string) (*RunReport, error) {
	f, err := w.fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("no run report at %q", p)
		}
		return nil, errors.Wrapf(err, "opening run report %q", p)
	}
	defer f.Close()

	var report RunReport
	if err := yaml.NewDecoder(f).Decode(&report); err != nil {
		return nil, errors.Wrapf(err, "decoding run report %q", p)
	}
	return &report, nil
}

// List returns report paths, newest stamp first and lexically sorted within
// a stamp. A nil filter lists every stamp.
func (w *ReportWriter) List(filter *stamp.Stamp) ([]string, error) {
	var stampDirs []string
	if filter != nil {
		stampDirs = []string{filter.String()}
	} else {
		entries, err := w.fs.ReadDir(runsDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, errors.Wrap(err, "listing run report stamps")
		}
		for _, e := range entries {
			if e.IsDir() {
				stampDirs = append(stampDirs, e.Name())
			}
		}
		// Stamps are YYMMDD, so reverse-lexical is newest first.
		sort.Sort(sort.Reverse(sort.StringSlice(stampDirs)))
	}

	var paths []string
	for _, d := range stampDirs {
		entries, err := w.fs.ReadDir(path.Join(runsDir, d))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "listing run reports for %s", d)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			paths = append(paths, path.Join(runsDir, d, name))
		}
	}
	return paths, nil
}
