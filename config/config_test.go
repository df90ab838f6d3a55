package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-data/causeway/stamp"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHubRoot, cfg.Paths.HubRoot)
	assert.Equal(t, DefaultDatabase, cfg.Paths.Database)
	assert.Equal(t, DefaultManifest, cfg.Paths.Manifest)
	assert.Equal(t, DefaultWorkers, cfg.Run.Workers)
	assert.False(t, cfg.Run.Overwrite)
	assert.Equal(t, DefaultAnnotationPolicy, cfg.Merge.AnnotationPolicy)
	assert.Equal(t, DefaultSettleMs, cfg.Ingest.SettleMs)
	assert.Equal(t, "", cfg.Runtime.ForcedToday)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[paths]
hub_root = "/srv/causeway/hub"

[run]
workers   = 8
overwrite = true

[runtime]
forced_today = "230421"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/causeway/hub", cfg.Paths.HubRoot)
	assert.Equal(t, 8, cfg.Run.Workers)
	assert.True(t, cfg.Run.Overwrite)
	assert.Equal(t, "230421", cfg.Runtime.ForcedToday)
	assert.Equal(t, DefaultDatabase, cfg.Paths.Database, "unset keys keep their defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAUSEWAY_RUN_WORKERS", "12")
	t.Setenv("CAUSEWAY_LOGGING_JSON", "true")

	cfg, err := unmarshal(newViper())
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Run.Workers)
	assert.True(t, cfg.Logging.JSON)
}

func TestFindProjectConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	path := writeConfig(t, root, "[run]\nworkers = 8\n")

	// testing.T.Chdir needs Go 1.24; do the same by hand on Go 1.21.
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	found := findProjectConfig()
	require.NotEmpty(t, found)

	// Temp dirs can sit behind symlinks, so compare resolved paths.
	want, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "blank hub root",
			mutate:  func(c *Config) { c.Paths.HubRoot = "" },
			wantErr: "paths.hub_root",
		},
		{
			name:    "blank database",
			mutate:  func(c *Config) { c.Paths.Database = "" },
			wantErr: "paths.database",
		},
		{
			name:    "blank manifest",
			mutate:  func(c *Config) { c.Paths.Manifest = "" },
			wantErr: "paths.manifest",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Run.Workers = 0 },
			wantErr: "run.workers",
		},
		{
			name:    "unknown annotation policy",
			mutate:  func(c *Config) { c.Merge.AnnotationPolicy = "sentinel" },
			wantErr: "merge.annotation_policy",
		},
		{
			name:    "negative settle",
			mutate:  func(c *Config) { c.Ingest.SettleMs = -1 },
			wantErr: "ingest.settle_ms",
		},
		{
			name:    "zero rate",
			mutate:  func(c *Config) { c.Ingest.RatePerSec = 0 },
			wantErr: "ingest.rate_per_sec",
		},
		{
			name:    "zero burst",
			mutate:  func(c *Config) { c.Ingest.Burst = 0 },
			wantErr: "ingest.burst",
		},
		{
			name:    "malformed forced today",
			mutate:  func(c *Config) { c.Runtime.ForcedToday = "2023-04-21" },
			wantErr: "runtime.forced_today",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)

	cfg := Default()
	cfg.Run.Workers = 8
	cfg.Runtime.ForcedToday = "230421"
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveRefusesInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)
	cfg := Default()
	cfg.Run.Workers = 0

	require.Error(t, Save(cfg, path))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "invalid config must not be written")
}

func TestSaveRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)

	for workers := 1; workers <= 5; workers++ {
		cfg := Default()
		cfg.Run.Workers = workers
		require.NoError(t, Save(cfg, path))
	}

	current, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, current.Run.Workers)

	for suffix, wantWorkers := range map[string]int{".back1": 4, ".back2": 3, ".back3": 2} {
		backup, err := LoadFromFile(path + suffix)
		require.NoError(t, err, "backup %s", suffix)
		assert.Equal(t, wantWorkers, backup.Run.Workers, "backup %s", suffix)
	}

	_, statErr := os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(statErr), "only three backups are kept")
}

func TestApplyForcedToday(t *testing.T) {
	defer stamp.ClearForcedToday()

	cfg := Default()
	cfg.Runtime.ForcedToday = "230421"
	require.NoError(t, cfg.ApplyForcedToday())
	assert.Equal(t, "230421", stamp.Today().String())

	cfg.Runtime.ForcedToday = ""
	require.NoError(t, cfg.ApplyForcedToday())
	assert.NotEqual(t, "230421", stamp.Today().String())

	cfg.Runtime.ForcedToday = "not-a-stamp"
	require.Error(t, cfg.ApplyForcedToday())
}
