package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/causeway-data/causeway/errors"
)

const (
	// ProjectConfigName is the per-project file found by walking up from
	// the working directory.
	ProjectConfigName = "causeway.toml"

	// EnvPrefix namespaces environment overrides, e.g. CAUSEWAY_RUN_WORKERS.
	EnvPrefix = "CAUSEWAY"

	userConfigDir  = ".causeway"
	userConfigName = "config.toml"
	systemConfig   = "/etc/causeway/config.toml"
)

// Load reads the configuration from every source, lowest precedence first:
// defaults, /etc/causeway, ~/.causeway, the project file found by walking
// up from the working directory, then CAUSEWAY_* environment variables.
// The result is not validated; callers run Validate once they know how
// they intend to use it.
func Load() (*Config, error) {
	v := newViper()
	mergeConfigFiles(v)
	return unmarshal(v)
}

// LoadFromFile reads configuration from one specific file over the
// defaults, without environment overrides.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// findProjectConfig walks up from the working directory looking for the
// project config file. Returns "" when none is found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles merges configuration files in precedence order, lowest
// first: system, user, project. Missing files are skipped; unreadable ones
// are ignored rather than failing startup.
func mergeConfigFiles(v *viper.Viper) {
	paths := []string{systemConfig}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, userConfigDir, userConfigName))
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		layer := viper.New()
		layer.SetConfigFile(path)
		layer.SetConfigType("toml")
		if err := layer.ReadInConfig(); err != nil {
			continue
		}
		// MergeConfigMap keeps file layers below environment overrides.
		_ = v.MergeConfigMap(layer.AllSettings())
	}
}
