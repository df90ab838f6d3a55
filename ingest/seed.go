package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/store"
)

// seedManifestName is the manifest every seed bundle carries at its root.
const seedManifestName = "seed.toml"

// SeedEntry is one artifact a seed bundle provides. File is relative to the
// bundle directory.
type SeedEntry struct {
	Type  string `toml:"type"`
	ID    string `toml:"id"`
	Stamp string `toml:"stamp"`
	File  string `toml:"file"`

	// Hub may be left empty when exactly one node hosts the type.
	Hub string `toml:"hub"`
}

// SeedBundle is a directory of exports plus the seed.toml manifest naming
// where each one belongs.
type SeedBundle struct {
	Dir     string
	Entries []SeedEntry
}

// LoadSeedBundle reads dir/seed.toml and checks that every entry names a
// type, an id, a parseable stamp, and a file inside the bundle. Whether the
// files decode and pass schema validation is decided entry by entry when
// the bundle is applied.
func LoadSeedBundle(dir string) (*SeedBundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, seedManifestName))
	if err != nil {
		return nil, errors.Wrapf(err, "reading seed manifest in %q", dir)
	}

	var manifest struct {
		Entries []SeedEntry `toml:"entry"`
	}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrapf(err, "parsing %s in %q", seedManifestName, dir)
	}
	if len(manifest.Entries) == 0 {
		return nil, errors.Newf("seed bundle %q declares no entries", dir)
	}

	for i, e := range manifest.Entries {
		if e.Type == "" || e.ID == "" || e.Stamp == "" || e.File == "" {
			return nil, errors.Newf("seed entry %d is missing one of type, id, stamp, file", i+1)
		}
		if _, err := stamp.Parse(e.Stamp); err != nil {
			return nil, errors.Wrapf(err, "seed entry %d (%s/%s)", i+1, e.Type, e.ID)
		}
		if filepath.IsAbs(e.File) || strings.Contains(e.File, "..") {
			return nil, errors.Newf("seed entry %d: file %q must stay inside the bundle", i+1, e.File)
		}
	}
	return &SeedBundle{Dir: dir, Entries: manifest.Entries}, nil
}

// SeedStatus classifies what happened to one seed entry.
type SeedStatus string

const (
	SeedAdded   SeedStatus = "added"
	SeedSkipped SeedStatus = "skipped"
	SeedFailed  SeedStatus = "failed"
)

// SeedOutcome reports what one entry produced. Err is set only for
// SeedFailed; Artifact only for SeedAdded.
type SeedOutcome struct {
	Entry    SeedEntry
	Status   SeedStatus
	Artifact *store.Artifact
	Err      error
}

// PopulateFromSeed puts every bundle entry, replacing whatever the store
// already holds at the same key. One bad entry does not stop the rest; the
// outcome list reports each entry in bundle order.
func (a *Accessor) PopulateFromSeed(ctx context.Context, bundle *SeedBundle) ([]SeedOutcome, error) {
	return a.applySeed(ctx, bundle, true)
}

// EnrichFromSeed puts only the entries whose keys the store does not hold
// yet. Existing artifacts stay untouched and report SeedSkipped.
func (a *Accessor) EnrichFromSeed(ctx context.Context, bundle *SeedBundle) ([]SeedOutcome, error) {
	return a.applySeed(ctx, bundle, false)
}

func (a *Accessor) applySeed(ctx context.Context, bundle *SeedBundle, overwrite bool) ([]SeedOutcome, error) {
	if bundle == nil || len(bundle.Entries) == 0 {
		return nil, errors.New("seed bundle is empty")
	}

	outcomes := make([]SeedOutcome, 0, len(bundle.Entries))
	added, skipped, failed := 0, 0, 0
	for _, entry := range bundle.Entries {
		out := a.applySeedEntry(ctx, bundle.Dir, entry, overwrite)
		switch out.Status {
		case SeedAdded:
			added++
		case SeedSkipped:
			skipped++
		case SeedFailed:
			failed++
			a.logger.Warnw("seed entry rejected",
				"type", entry.Type,
				"id", entry.ID,
				"stamp", entry.Stamp,
				"error", out.Err,
			)
		}
		outcomes = append(outcomes, out)
	}

	a.logger.Infow("seed bundle applied",
		"dir", bundle.Dir,
		"overwrite", overwrite,
		"added", added,
		"skipped", skipped,
		"failed", failed,
	)
	return outcomes, nil
}

func (a *Accessor) applySeedEntry(ctx context.Context, dir string, entry SeedEntry, overwrite bool) SeedOutcome {
	out := SeedOutcome{Entry: entry, Status: SeedFailed}

	at, err := stamp.Parse(entry.Stamp)
	if err != nil {
		out.Err = err
		return out
	}
	obj := store.Object{TypeName: entry.Type, LogicalID: entry.ID}

	node := entry.Hub
	if node == "" {
		host, err := a.store.Taxonomy().HostingNode(entry.Type)
		if err != nil {
			out.Err = err
			return out
		}
		node = host.Path()
	}

	if !overwrite {
		exists, err := a.store.Exists(ctx, node, obj, at)
		if err != nil {
			out.Err = err
			return out
		}
		if exists {
			out.Status = SeedSkipped
			return out
		}
	}

	f, err := os.Open(filepath.Join(dir, entry.File))
	if err != nil {
		out.Err = errors.Wrapf(err, "opening seed file %q", entry.File)
		return out
	}
	tbl, err := a.codec.Decode(f)
	f.Close()
	if err != nil {
		out.Err = errors.Wrapf(err, "decoding seed file %q", entry.File)
		return out
	}

	art, err := a.store.Put(ctx, node, obj, at, tbl, store.PutOptions{Overwrite: overwrite})
	if err != nil {
		// The artifact key is unique across the whole hub tree, so a
		// same-key artifact under another node also counts as already
		// present.
		if !overwrite && errors.IsDuplicateArtifact(err) {
			out.Status = SeedSkipped
			return out
		}
		out.Err = err
		return out
	}

	out.Status = SeedAdded
	out.Artifact = art
	return out
}
