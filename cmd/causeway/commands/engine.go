// Package commands implements the causeway CLI commands.
package commands

import (
	"database/sql"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/config"
	"github.com/causeway-data/causeway/db"
	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/logger"
	"github.com/causeway-data/causeway/manifest"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/store"
)

// loadConfig resolves configuration for one command run: the file named by
// --config when the flag is set, otherwise the system/user/project cascade.
// The result is validated and runtime.forced_today is applied before it is
// returned.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ApplyForcedToday(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// engine bundles what most commands need once configuration is resolved:
// the manifest declarations, the version index, and the store over the hub
// root.
type engine struct {
	cfg    *config.Config
	bundle *manifest.Bundle
	db     *sql.DB
	fs     billy.Filesystem
	store  *store.Store
}

// openEngine loads configuration and the manifest, opens the index database
// with migrations applied, and wires the store over the hub root.
func openEngine(cmd *cobra.Command) (*engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	bundle, err := manifest.Load(cfg.Paths.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	database, err := db.OpenWithMigrations(cfg.Paths.Database, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	fs := osfs.New(cfg.Paths.HubRoot)
	s := store.New(database, fs, bundle.Taxonomy, store.Options{
		VerifyDigests: cfg.Run.VerifyDigests,
	}, logger.Logger)

	return &engine{cfg: cfg, bundle: bundle, db: database, fs: fs, store: s}, nil
}

// Close releases the engine's database handle.
func (e *engine) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// stampArg parses a stamp argument. Commands accept every spelling users
// paste from exports: the YYMMDD wire form, the dashed YY-MM-DD form, a
// five-digit spreadsheet serial, or a snapshot label like APR20, which
// resolves against the current year.
func stampArg(raw string) (stamp.Stamp, error) {
	if at, err := stamp.ParseAny(raw); err == nil {
		return at, nil
	}
	at, err := stamp.ParseSnapshot(raw, stamp.Today())
	if err != nil {
		return stamp.Stamp{}, errors.Newf("stamp %q: want YYMMDD, YY-MM-DD, a serial, or a label like APR20", raw)
	}
	return at, nil
}
