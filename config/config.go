// Package config is the process configuration surface: a TOML file merged
// from system, user, and project locations with CAUSEWAY_* environment
// overrides, validated before use, persisted with rotating backups, and
// optionally hot-reloaded by a file watcher.
package config

import (
	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/schema"
	"github.com/causeway-data/causeway/stamp"
)

// Config is the whole process configuration.
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths" toml:"paths"`
	Run     RunConfig     `mapstructure:"run" toml:"run"`
	Merge   MergeConfig   `mapstructure:"merge" toml:"merge"`
	Ingest  IngestConfig  `mapstructure:"ingest" toml:"ingest"`
	Runtime RuntimeConfig `mapstructure:"runtime" toml:"runtime"`
	Logging LoggingConfig `mapstructure:"logging" toml:"logging"`
}

// PathsConfig locates the engine's on-disk state.
type PathsConfig struct {
	HubRoot  string `mapstructure:"hub_root" toml:"hub_root"`   // blob store root
	Database string `mapstructure:"database" toml:"database"`   // version index
	Manifest string `mapstructure:"manifest" toml:"manifest"`   // HCL declarations
}

// RunConfig configures the workflow executor.
type RunConfig struct {
	Workers       int  `mapstructure:"workers" toml:"workers"`               // worker pool size (default: 4)
	Overwrite     bool `mapstructure:"overwrite" toml:"overwrite"`           // default overwrite policy for step puts
	VerifyDigests bool `mapstructure:"verify_digests" toml:"verify_digests"` // re-hash blobs on read
}

// MergeConfig configures the annotation merge engine.
type MergeConfig struct {
	AnnotationPolicy string `mapstructure:"annotation_policy" toml:"annotation_policy"` // default policy for types that declare none
}

// IngestConfig configures the drop-directory watcher.
type IngestConfig struct {
	WatchDir   string  `mapstructure:"watch_dir" toml:"watch_dir"`       // "" disables the watcher
	SettleMs   int     `mapstructure:"settle_ms" toml:"settle_ms"`       // quiet period before a dropped file is read
	RatePerSec float64 `mapstructure:"rate_per_sec" toml:"rate_per_sec"` // store puts per second
	Burst      int     `mapstructure:"burst" toml:"burst"`               // rate limiter burst
}

// RuntimeConfig pins process-wide runtime behavior.
type RuntimeConfig struct {
	ForcedToday string `mapstructure:"forced_today" toml:"forced_today"` // YYMMDD; "" = real today
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// Validate checks every section and reports the first violation.
func (c *Config) Validate() error {
	if c.Paths.HubRoot == "" {
		return errors.New("paths.hub_root cannot be empty")
	}
	if c.Paths.Database == "" {
		return errors.New("paths.database cannot be empty")
	}
	if c.Paths.Manifest == "" {
		return errors.New("paths.manifest cannot be empty")
	}

	if c.Run.Workers < 1 {
		return errors.Newf("run.workers must be >= 1, got %d", c.Run.Workers)
	}

	if _, err := schema.ParseAnnotationPolicy(c.Merge.AnnotationPolicy); err != nil {
		return errors.Wrap(err, "merge.annotation_policy")
	}

	if c.Ingest.SettleMs < 0 {
		return errors.Newf("ingest.settle_ms must be >= 0, got %d", c.Ingest.SettleMs)
	}
	if c.Ingest.RatePerSec <= 0 {
		return errors.Newf("ingest.rate_per_sec must be > 0, got %g", c.Ingest.RatePerSec)
	}
	if c.Ingest.Burst < 1 {
		return errors.Newf("ingest.burst must be >= 1, got %d", c.Ingest.Burst)
	}

	if c.Runtime.ForcedToday != "" {
		if _, err := stamp.Parse(c.Runtime.ForcedToday); err != nil {
			return errors.Wrap(err, "runtime.forced_today")
		}
	}

	return nil
}

// ApplyForcedToday pins or unpins stamp.Today from runtime.forced_today.
// Replays and tests set it so "the run stamp is today" stays reproducible.
func (c *Config) ApplyForcedToday() error {
	if c.Runtime.ForcedToday == "" {
		stamp.ClearForcedToday()
		return nil
	}
	at, err := stamp.Parse(c.Runtime.ForcedToday)
	if err != nil {
		return errors.Wrap(err, "runtime.forced_today")
	}
	stamp.SetForcedToday(at)
	return nil
}
