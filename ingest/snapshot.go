package ingest

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/hub"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/store"
)

// snapshotRoot is the reserved directory snapshots land under. Hub node
// names cannot start with an underscore, so live hubs never collide with
// it.
const snapshotRoot = "_snapshots"

// SnapshotEntry records one artifact copied into a snapshot.
type SnapshotEntry struct {
	Object    store.Object
	Stamp     stamp.Stamp
	From      hub.Address
	To        string
	SizeBytes int64
}

// SnapshotManifest lists what one snapshot captured.
type SnapshotManifest struct {
	Label   string
	Node    string
	At      stamp.Stamp
	Entries []SnapshotEntry
}

// Snapshot copies the newest artifact at or before the given stamp of every
// object hosted by the node or its descendants into _snapshots/<label>/,
// keeping hub addresses intact below that prefix. An empty label defaults
// to the stamp's snapshot label, e.g. APR21 for 210421. Re-running with the
// same label replaces the node's previous copy wholesale. Objects with no
// version at or before the stamp are left out; that is absence, not
// failure.
func (a *Accessor) Snapshot(ctx context.Context, node string, at stamp.Stamp, label string) (*SnapshotManifest, error) {
	root, err := a.store.Taxonomy().Node(node)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		return nil, errors.New("snapshot needs a stamp")
	}
	if label == "" {
		label = at.SnapshotLabel()
	}
	if strings.ContainsAny(label, "/\\") {
		return nil, errors.Newf("snapshot label %q: path separators not allowed", label)
	}

	// Stale artifacts from an earlier run must not linger under the label.
	fs := a.store.Filesystem()
	if err := util.RemoveAll(fs, path.Join(snapshotRoot, label, node)); err != nil {
		return nil, errors.Wrapf(err, "clearing previous snapshot %q of %q", label, node)
	}

	manifest := &SnapshotManifest{Label: label, Node: node, At: at}
	for _, n := range subtree(root) {
		for _, typeName := range n.Hosts() {
			objects, err := a.store.ListObjects(ctx, n.Path(), typeName)
			if err != nil {
				return nil, err
			}
			for _, obj := range objects {
				art, err := a.store.GetLatestAtOrBefore(ctx, n.Path(), obj, at)
				if errors.IsNotFound(err) {
					continue
				}
				if err != nil {
					return nil, err
				}
				entry, err := a.copyIntoSnapshot(label, art)
				if err != nil {
					return nil, err
				}
				manifest.Entries = append(manifest.Entries, entry)
			}
		}
	}

	a.logger.Infow("hub snapshot written",
		"node", node,
		"stamp", at.String(),
		"label", label,
		"artifacts", len(manifest.Entries),
	)
	return manifest, nil
}

// subtree returns the node and all its descendants, depth-first.
func subtree(root *hub.Node) []*hub.Node {
	nodes := []*hub.Node{root}
	for _, child := range root.Children() {
		nodes = append(nodes, subtree(child)...)
	}
	return nodes
}

// copyIntoSnapshot re-encodes the artifact under the snapshot prefix. The
// write lands via temp file and rename like a live put, so a reader of the
// snapshot tree never sees a torn copy.
func (a *Accessor) copyIntoSnapshot(label string, art *store.Artifact) (SnapshotEntry, error) {
	dst := path.Join(snapshotRoot, label, string(art.Address))

	var buf bytes.Buffer
	if err := a.codec.Encode(&buf, art.Table); err != nil {
		return SnapshotEntry{}, errors.Wrapf(err, "encoding %s@%s for snapshot", art.Object, art.Stamp)
	}
	if err := store.WriteBlob(a.store.Filesystem(), dst, buf.Bytes()); err != nil {
		return SnapshotEntry{}, err
	}

	return SnapshotEntry{
		Object:    art.Object,
		Stamp:     art.Stamp,
		From:      art.Address,
		To:        dst,
		SizeBytes: int64(buf.Len()),
	}, nil
}
