package store

import (
	"context"
	"database/sql"

	"github.com/mattn/go-sqlite3"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/hub"
	"github.com/causeway-data/causeway/stamp"
)

const (
	insertArtifactQuery = `
		INSERT INTO artifacts (type_name, logical_id, stamp, node_path, address, digest, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	upsertArtifactQuery = `
		INSERT INTO artifacts (type_name, logical_id, stamp, node_path, address, digest, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (type_name, logical_id, stamp) DO UPDATE SET
			node_path = excluded.node_path,
			address = excluded.address,
			digest = excluded.digest,
			size_bytes = excluded.size_bytes,
			created_at = excluded.created_at`

	// The key lookup used by Put spans the whole hub tree: the UNIQUE
	// constraint is on (type, id, stamp) alone, so a duplicate under any
	// node is a duplicate.
	lookupKeyQuery = `
		SELECT node_path, address FROM artifacts
		WHERE type_name = ? AND logical_id = ? AND stamp = ?`

	getArtifactQuery = `
		SELECT address, digest, size_bytes, created_at FROM artifacts
		WHERE node_path = ? AND type_name = ? AND logical_id = ? AND stamp = ?`

	latestArtifactQuery = `
		SELECT stamp, address, digest, size_bytes, created_at FROM artifacts
		WHERE node_path = ? AND type_name = ? AND logical_id = ? AND stamp <= ?
		ORDER BY stamp DESC LIMIT 1`

	listStampsQuery = `
		SELECT stamp FROM artifacts
		WHERE node_path = ? AND type_name = ? AND logical_id = ?
		ORDER BY stamp ASC`

	listObjectsQuery = `
		SELECT DISTINCT logical_id FROM artifacts
		WHERE node_path = ? AND type_name = ?
		ORDER BY logical_id ASC`
)

// keyRow is the slice of an index row Put needs to decide duplicate vs
// overwrite and to clean up a superseded blob.
type keyRow struct {
	nodePath string
	address  string
}

func (s *Store) lookupKey(ctx context.Context, obj Object, at stamp.Stamp) (keyRow, bool, error) {
	var row keyRow
	err := s.db.QueryRowContext(ctx, lookupKeyQuery, obj.TypeName, obj.LogicalID, at.String()).
		Scan(&row.nodePath, &row.address)
	if err == sql.ErrNoRows {
		return keyRow{}, false, nil
	}
	if err != nil {
		return keyRow{}, false, errors.Wrapf(err, "looking up index row for %s@%s", obj, at)
	}
	return row, true, nil
}

func (s *Store) insertEntry(ctx context.Context, art *Artifact, overwrite bool) error {
	query := insertArtifactQuery
	if overwrite {
		query = upsertArtifactQuery
	}
	_, err := s.db.ExecContext(ctx, query,
		art.Object.TypeName,
		art.Object.LogicalID,
		art.Stamp.String(),
		art.Node,
		string(art.Address),
		art.Digest,
		art.SizeBytes,
		art.CreatedAt,
	)
	if err != nil {
		// Another process can win the race between the key lookup and
		// this insert; the UNIQUE constraint is the backstop.
		if isUniqueViolation(err) {
			return errors.WithStack(&errors.DuplicateArtifactError{
				TypeName:  art.Object.TypeName,
				LogicalID: art.Object.LogicalID,
				Stamp:     art.Stamp.String(),
			})
		}
		return errors.Wrapf(err, "inserting index row for %s@%s", art.Object, art.Stamp)
	}
	return nil
}

func (s *Store) getEntry(ctx context.Context, nodePath string, obj Object, at stamp.Stamp) (*Artifact, error) {
	art := &Artifact{Object: obj, Stamp: at, Node: nodePath}
	var address string
	err := s.db.QueryRowContext(ctx, getArtifactQuery, nodePath, obj.TypeName, obj.LogicalID, at.String()).
		Scan(&address, &art.Digest, &art.SizeBytes, &art.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("no artifact for %s@%s under hub node %q", obj, at, nodePath)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading index row for %s@%s", obj, at)
	}
	art.Address = hub.Address(address)
	return art, nil
}

func (s *Store) latestEntry(ctx context.Context, nodePath string, obj Object, at stamp.Stamp) (*Artifact, error) {
	art := &Artifact{Object: obj, Node: nodePath}
	var wire, address string
	err := s.db.QueryRowContext(ctx, latestArtifactQuery, nodePath, obj.TypeName, obj.LogicalID, at.String()).
		Scan(&wire, &address, &art.Digest, &art.SizeBytes, &art.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("no artifact for %s at or before %s under hub node %q", obj, at, nodePath)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading latest index row for %s at or before %s", obj, at)
	}
	st, err := stamp.Parse(wire)
	if err != nil {
		return nil, errors.Wrapf(err, "index row for %s holds a malformed stamp", obj)
	}
	art.Stamp = st
	art.Address = hub.Address(address)
	return art, nil
}

func (s *Store) listStamps(ctx context.Context, nodePath string, obj Object) ([]stamp.Stamp, error) {
	rows, err := s.db.QueryContext(ctx, listStampsQuery, nodePath, obj.TypeName, obj.LogicalID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing stamps for %s", obj)
	}
	defer rows.Close()

	var stamps []stamp.Stamp
	for rows.Next() {
		var wire string
		if err := rows.Scan(&wire); err != nil {
			return nil, errors.Wrap(err, "scanning stamp row")
		}
		st, err := stamp.Parse(wire)
		if err != nil {
			return nil, errors.Wrapf(err, "index row for %s holds a malformed stamp", obj)
		}
		stamps = append(stamps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating stamp rows for %s", obj)
	}
	return stamps, nil
}

func (s *Store) listObjects(ctx context.Context, nodePath, typeName string) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx, listObjectsQuery, nodePath, typeName)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s objects under %q", typeName, nodePath)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning logical id row")
		}
		objects = append(objects, Object{TypeName: typeName, LogicalID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating %s object rows", typeName)
	}
	return objects, nil
}

// isUniqueViolation reports whether err is SQLite's UNIQUE constraint
// failure.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
