package config

import "github.com/spf13/viper"

// Default values for every configuration key. Kept in one place so Load,
// LoadFromFile, and the watcher all agree on what an absent key means.
const (
	DefaultHubRoot  = "./hub"
	DefaultDatabase = "./causeway.db"
	DefaultManifest = "./causeway.hcl"

	DefaultWorkers = 4

	DefaultAnnotationPolicy = "non-blank"

	DefaultSettleMs   = 500
	DefaultRatePerSec = 4.0
	DefaultBurst      = 2
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.hub_root", DefaultHubRoot)
	v.SetDefault("paths.database", DefaultDatabase)
	v.SetDefault("paths.manifest", DefaultManifest)

	v.SetDefault("run.workers", DefaultWorkers)
	v.SetDefault("run.overwrite", false)
	v.SetDefault("run.verify_digests", false)

	v.SetDefault("merge.annotation_policy", DefaultAnnotationPolicy)

	// watch_dir defaults empty: ingestion is opt-in.
	v.SetDefault("ingest.watch_dir", "")
	v.SetDefault("ingest.settle_ms", DefaultSettleMs)
	v.SetDefault("ingest.rate_per_sec", DefaultRatePerSec)
	v.SetDefault("ingest.burst", DefaultBurst)

	v.SetDefault("runtime.forced_today", "")

	v.SetDefault("logging.json", false)
}

// Default returns a configuration holding only the defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			HubRoot:  DefaultHubRoot,
			Database: DefaultDatabase,
			Manifest: DefaultManifest,
		},
		Run: RunConfig{
			Workers: DefaultWorkers,
		},
		Merge: MergeConfig{
			AnnotationPolicy: DefaultAnnotationPolicy,
		},
		Ingest: IngestConfig{
			SettleMs:   DefaultSettleMs,
			RatePerSec: DefaultRatePerSec,
			Burst:      DefaultBurst,
		},
	}
}
