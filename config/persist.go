package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/causeway-data/causeway/errors"
)

// Save validates cfg and writes it to path as TOML, rotating backups of
// the previous contents first so a bad edit is always recoverable.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := rotateBackups(path); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating config directory %s", dir)
		}
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing config %s", path)
	}
	return nil
}

// rotateBackups keeps the last three versions of the config file:
// .back3 is dropped, .back2 and .back1 shift down, and the current file
// is copied to .back1. A save onto a path with no existing file rotates
// nothing.
func rotateBackups(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	back1 := path + ".back1"
	back2 := path + ".back2"
	back3 := path + ".back3"

	// The oldest backup is expendable; a failed remove must not block the
	// save itself.
	_ = os.Remove(back3)

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "rotating .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "rotating .back1 to .back2")
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading config for backup")
	}
	if err := os.WriteFile(back1, content, 0o644); err != nil {
		return errors.Wrap(err, "writing .back1")
	}
	return nil
}
