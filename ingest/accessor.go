// Package ingest moves artifacts across the hub boundary without a step
// run. Reads can fall back to alternate hubs and to multi-part files that
// upstream systems drop into the hub tree unindexed. Seed bundles stock a
// store from a directory of exports. Snapshots freeze a hub's state at a
// stamp into a side tree. The drop watcher files exports arriving in a
// directory into the store as they settle.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/hub"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/store"
	"github.com/causeway-data/causeway/tabular"
)

// Accessor reads artifacts with fallbacks the store itself does not offer.
// Upstream systems sometimes deposit exports straight into the hub tree,
// whole or split into .partN pieces, without registering an index row; the
// accessor finds those too.
type Accessor struct {
	store  *store.Store
	codec  tabular.Codec
	logger *zap.SugaredLogger
}

// NewAccessor wraps a store. Direct drops decode as CSV, the only format
// upstream exports arrive in.
func NewAccessor(s *store.Store, logger *zap.SugaredLogger) *Accessor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Accessor{store: s, codec: tabular.CSV{}, logger: logger}
}

// Store returns the wrapped store.
func (a *Accessor) Store() *store.Store { return a.store }

// ReadPreferred returns the newest artifact for obj at or before the given
// stamp, trying the preferred node first and then each alternate in order.
// Per node the version index is consulted first, then the hub tree itself
// for unindexed drops at the exact stamp. The first hit wins. A candidate
// node that does not host the type counts as a miss; a candidate that does
// not exist at all is an error. When every node misses, the error names
// everything tried.
func (a *Accessor) ReadPreferred(ctx context.Context, node string, obj store.Object, at stamp.Stamp, alternates ...string) (*store.Artifact, error) {
	tried := append([]string{node}, alternates...)
	for _, candidate := range tried {
		if _, err := a.store.Taxonomy().Node(candidate); err != nil {
			return nil, err
		}
	}

	for _, candidate := range tried {
		art, err := a.store.GetLatestAtOrBefore(ctx, candidate, obj, at)
		if err == nil {
			return art, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}

		art, err = a.readDrop(candidate, obj, at)
		if err == nil {
			a.logger.Debugw("artifact read from unindexed drop",
				"object", obj.String(),
				"stamp", at.String(),
				"node", candidate,
			)
			return art, nil
		}
		if !errors.IsNotFound(err) && !errors.IsUnhostedType(err) {
			return nil, err
		}
	}
	return nil, errors.NewNotFoundError("%s at or before %s not found under any of %s",
		obj, at, strings.Join(tried, ", "))
}

// readDrop looks for obj in the hub tree at the address its exact stamp
// resolves to. Drops bypass Put, so schema validation happens here instead.
func (a *Accessor) readDrop(node string, obj store.Object, at stamp.Stamp) (*store.Artifact, error) {
	addr, err := a.store.Taxonomy().Resolve(node, obj.TypeName, obj.LogicalID, at)
	if err != nil {
		return nil, err
	}

	tbl, size, err := a.assembleDrop(obj, at, addr)
	if err != nil {
		return nil, err
	}
	if err := a.store.Taxonomy().Registry().Validate(obj.TypeName, tbl); err != nil {
		return nil, err
	}

	// Drops carry no index row, so there is no digest or creation time to
	// report.
	return &store.Artifact{
		Object:    obj,
		Stamp:     at,
		Node:      node,
		Address:   addr,
		SizeBytes: size,
		Table:     tbl,
	}, nil
}

// assembleDrop reads the drop at addr: the whole file when present,
// otherwise consecutive name.part1.csv, name.part2.csv, ... pieces
// concatenated in part order. Every piece must repeat the header of the
// first exactly.
func (a *Accessor) assembleDrop(obj store.Object, at stamp.Stamp, addr hub.Address) (*tabular.Table, int64, error) {
	fs := a.store.Filesystem()

	blob, ok, err := readIfPresent(fs, string(addr))
	if err != nil {
		return nil, 0, err
	}
	if ok {
		tbl, err := a.codec.Decode(bytes.NewReader(blob))
		if err != nil {
			return nil, 0, errors.Wrapf(err, "decoding drop at %s", addr)
		}
		return tbl, int64(len(blob)), nil
	}

	var combined *tabular.Table
	var size int64
	for n := 1; ; n++ {
		blob, ok, err := readIfPresent(fs, partAddress(string(addr), n))
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			if n == 1 {
				return nil, 0, errors.NewNotFoundError("no drop for %s@%s at %s", obj, at, addr)
			}
			break
		}
		tbl, err := a.codec.Decode(bytes.NewReader(blob))
		if err != nil {
			return nil, 0, errors.Wrapf(err, "decoding part %d of %s", n, addr)
		}
		if combined == nil {
			combined = tbl
		} else if err := combined.AppendTable(tbl); err != nil {
			return nil, 0, errors.Wrapf(err, "part %d of %s does not line up with part 1", n, addr)
		}
		size += int64(len(blob))
	}
	return combined, size, nil
}

// partAddress derives the address of piece n: the .partN tag sits between
// the filename body and its extension.
func partAddress(addr string, n int) string {
	ext := path.Ext(addr)
	return fmt.Sprintf("%s.part%d%s", strings.TrimSuffix(addr, ext), n, ext)
}

func readIfPresent(fs billy.Filesystem, name string) ([]byte, bool, error) {
	f, err := fs.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "opening %q", name)
	}
	defer f.Close()

	blob, err := io.ReadAll(f)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %q", name)
	}
	return blob, true, nil
}
