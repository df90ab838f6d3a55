// Package store persists stamped artifacts: the CSV blob goes to the
// filesystem at its hub-resolved address, the version row goes to the SQLite
// index. Artifacts are immutable once written; a second put for the same
// (type, logical id, stamp) key fails unless the caller asks to overwrite.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/hub"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/tabular"
)

// Object identifies a logical object: a named thing that exists in many
// stamped versions, e.g. work_items/ProductX.
type Object struct {
	TypeName  string
	LogicalID string
}

func (o Object) String() string { return o.TypeName + "/" + o.LogicalID }

// Artifact is one stamped materialization of a logical object.
type Artifact struct {
	Object    Object
	Stamp     stamp.Stamp
	Node      string
	Address   hub.Address
	Digest    string
	SizeBytes int64
	CreatedAt time.Time

	// Table is the decoded payload. Put and the read operations fill it;
	// index-only lookups leave it nil.
	Table *tabular.Table
}

// PutOptions control a single put.
type PutOptions struct {
	// Overwrite replaces an existing artifact at the same key instead of
	// failing with a DuplicateArtifactError.
	Overwrite bool
}

// Options configure a Store.
type Options struct {
	// Codec encodes and decodes artifact payloads. Defaults to CSV.
	Codec tabular.Codec

	// VerifyDigests re-hashes every blob on read and fails the read when
	// the blob no longer matches its index row.
	VerifyDigests bool
}

// Store is the temporal object store. Safe for concurrent use; writes to the
// same artifact key serialize on a striped key lock.
type Store struct {
	db       *sql.DB
	fs       billy.Filesystem
	taxonomy *hub.Taxonomy
	codec    tabular.Codec
	verify   bool
	logger   *zap.SugaredLogger
	locks    keyLocks
}

// New creates a store over an opened index database and a blob filesystem
// rooted at the hub root.
func New(db *sql.DB, fs billy.Filesystem, taxonomy *hub.Taxonomy, opts Options, logger *zap.SugaredLogger) *Store {
	codec := opts.Codec
	if codec == nil {
		codec = tabular.CSV{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		db:       db,
		fs:       fs,
		taxonomy: taxonomy,
		codec:    codec,
		verify:   opts.VerifyDigests,
		logger:   logger,
	}
}

// Taxonomy returns the hub taxonomy the store resolves addresses against.
func (s *Store) Taxonomy() *hub.Taxonomy { return s.taxonomy }

// Filesystem returns the blob filesystem rooted at the hub root.
func (s *Store) Filesystem() billy.Filesystem { return s.fs }

// Put validates tbl against obj's declared type, writes the blob under the
// node's resolved address, and records the version row. The key
// (type, logical id, stamp) is unique across the whole hub tree; an existing
// artifact makes Put fail with a DuplicateArtifactError unless
// opts.Overwrite is set, in which case the new blob and row replace the old
// ones.
func (s *Store) Put(ctx context.Context, nodePath string, obj Object, at stamp.Stamp, tbl *tabular.Table, opts PutOptions) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "put canceled before start")
	}
	if tbl == nil {
		return nil, errors.New("cannot store a nil table")
	}
	if at.IsZero() {
		return nil, errors.Newf("cannot store %s without a stamp", obj)
	}

	if err := s.taxonomy.Registry().Validate(obj.TypeName, tbl); err != nil {
		return nil, err
	}
	addr, err := s.taxonomy.Resolve(nodePath, obj.TypeName, obj.LogicalID, at)
	if err != nil {
		return nil, err
	}

	blob, digest, err := encodeBlob(s.codec, tbl)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s@%s", obj, at)
	}

	unlock := s.locks.lock(obj, at)
	defer unlock()

	prev, found, err := s.lookupKey(ctx, obj, at)
	if err != nil {
		return nil, err
	}
	if found && !opts.Overwrite {
		return nil, errors.WithStack(&errors.DuplicateArtifactError{
			TypeName:  obj.TypeName,
			LogicalID: obj.LogicalID,
			Stamp:     at.String(),
		})
	}

	if err := WriteBlob(s.fs, string(addr), blob); err != nil {
		return nil, errors.Wrapf(err, "writing blob for %s@%s", obj, at)
	}

	art := &Artifact{
		Object:    obj,
		Stamp:     at,
		Node:      nodePath,
		Address:   addr,
		Digest:    digest,
		SizeBytes: int64(len(blob)),
		CreatedAt: time.Now().UTC(),
		Table:     tbl.Clone(),
	}
	if err := s.insertEntry(ctx, art, opts.Overwrite); err != nil {
		return nil, err
	}

	// The old blob is unreachable once the row points elsewhere.
	if found && prev.address != string(addr) {
		if rmErr := s.fs.Remove(prev.address); rmErr != nil {
			s.logger.Debugw("stale blob left behind after overwrite",
				"address", prev.address, "error", rmErr)
		}
	}

	s.logger.Debugw("artifact stored",
		"type", obj.TypeName,
		"id", obj.LogicalID,
		"stamp", at.String(),
		"node", nodePath,
		"address", addr,
		"bytes", art.SizeBytes,
		"overwrite", found,
	)
	return art, nil
}

// Get returns the artifact stored for obj at exactly the given stamp under
// the given node. A missing key is an ErrNotFound.
func (s *Store) Get(ctx context.Context, nodePath string, obj Object, at stamp.Stamp) (*Artifact, error) {
	art, err := s.getEntry(ctx, nodePath, obj, at)
	if err != nil {
		return nil, err
	}
	return s.loadBlob(art)
}

// GetLatestAtOrBefore returns the newest artifact for obj whose stamp is at
// or before the given stamp. This is the operation behind "the version of X
// that was current at time t". A logical object with no version at or before
// the stamp is an ErrNotFound.
func (s *Store) GetLatestAtOrBefore(ctx context.Context, nodePath string, obj Object, at stamp.Stamp) (*Artifact, error) {
	art, err := s.latestEntry(ctx, nodePath, obj, at)
	if err != nil {
		return nil, err
	}
	return s.loadBlob(art)
}

// Exists reports whether an artifact is stored for obj at exactly the given
// stamp under the given node.
func (s *Store) Exists(ctx context.Context, nodePath string, obj Object, at stamp.Stamp) (bool, error) {
	_, err := s.getEntry(ctx, nodePath, obj, at)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListStamps returns every stamp for which obj has an artifact under the
// given node, oldest first. A logical object with no artifacts yields an
// empty slice, not an error.
func (s *Store) ListStamps(ctx context.Context, nodePath string, obj Object) ([]stamp.Stamp, error) {
	return s.listStamps(ctx, nodePath, obj)
}

// ListObjects returns the logical ids stored under the node for the given
// type, in id order.
func (s *Store) ListObjects(ctx context.Context, nodePath, typeName string) ([]Object, error) {
	return s.listObjects(ctx, nodePath, typeName)
}

// loadBlob reads and decodes the blob behind an index entry.
func (s *Store) loadBlob(art *Artifact) (*Artifact, error) {
	blob, err := readBlob(s.fs, string(art.Address))
	if err != nil {
		// The index says the artifact exists, so a vanished blob is
		// corruption rather than a plain not-found.
		if errors.IsNotFound(err) {
			return nil, errors.Newf("index row for %s@%s points at %q but the blob is gone",
				art.Object, art.Stamp, art.Address)
		}
		return nil, errors.Wrapf(err, "reading blob for %s@%s at %s", art.Object, art.Stamp, art.Address)
	}
	if s.verify {
		if got := digestBytes(blob); got != art.Digest {
			return nil, errors.Newf("blob for %s@%s does not match its index digest (have %s, want %s)",
				art.Object, art.Stamp, got, art.Digest)
		}
	}
	tbl, err := decodeBlob(s.codec, blob)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding blob for %s@%s", art.Object, art.Stamp)
	}
	art.Table = tbl
	return art, nil
}
