// Package slice projects sampled excerpts of stored artifacts into another
// hub. An excerpt keeps each source table's header and a subset of its rows,
// chosen per data type by a Sampler, so a small hub can stand in for a big
// one in tests and local runs.
//
// Excerpts land as unindexed projections at destination-resolved addresses.
// The artifact key is unique across the whole hub tree, so a same-stamp copy
// cannot take a second index row; preferred reads find the projected files
// through the direct-drop fallback instead.
package slice

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/hub"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/store"
	"github.com/causeway-data/causeway/tabular"
)

// TypeFilter names one data type a projection covers and the sampler that
// thins its artifacts.
type TypeFilter struct {
	TypeName string
	Keep     Sampler
}

// Def names an excerpt projection and the types it covers.
type Def struct {
	Name  string
	Types []TypeFilter
}

// Count reports the projection of one object: rows in the source artifact,
// rows kept, and where the excerpt landed. Empty samples are not written,
// so Written is false and Address empty for them.
type Count struct {
	Object  store.Object
	Stamp   stamp.Stamp
	Address hub.Address
	RowsIn  int
	RowsOut int
	Written bool
}

// TypeCount aggregates the projection of one data type.
type TypeCount struct {
	TypeName string
	Objects  int
	Written  int
	RowsIn   int
	RowsOut  int
}

// Result sums up one projection run.
type Result struct {
	Def    string
	Source string
	Dest   string
	At     stamp.Stamp
	Counts []Count
}

// PerType aggregates the per-object counts by data type, in first-projected
// order.
func (r *Result) PerType() []TypeCount {
	byName := make(map[string]*TypeCount)
	var order []string
	for _, c := range r.Counts {
		tc, ok := byName[c.Object.TypeName]
		if !ok {
			tc = &TypeCount{TypeName: c.Object.TypeName}
			byName[c.Object.TypeName] = tc
			order = append(order, c.Object.TypeName)
		}
		tc.Objects++
		if c.Written {
			tc.Written++
		}
		tc.RowsIn += c.RowsIn
		tc.RowsOut += c.RowsOut
	}
	out := make([]TypeCount, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// Projector copies sampled excerpts between hubs of one store.
type Projector struct {
	store  *store.Store
	codec  tabular.Codec
	logger *zap.SugaredLogger
}

// NewProjector returns a projector over the store. A nil logger disables
// logging.
func NewProjector(s *store.Store, logger *zap.SugaredLogger) *Projector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	// Excerpts are CSV like every other artifact in the hub tree.
	return &Projector{store: s, codec: tabular.CSV{}, logger: logger}
}

// Project copies a sampled excerpt of every covered object from the source
// node into the destination node. Per object it takes the newest artifact at
// or before the stamp, runs the type's sampler over it, and writes the
// non-empty result at the destination address under the source artifact's
// own stamp. Objects with no version at or before the stamp are skipped,
// not failed. The def is validated whole before anything is written.
func (p *Projector) Project(ctx context.Context, src, dst string, at stamp.Stamp, def Def) (*Result, error) {
	if def.Name == "" {
		return nil, errors.New("slice def needs a name")
	}
	if len(def.Types) == 0 {
		return nil, errors.Newf("slice def %q covers no types", def.Name)
	}
	if at.IsZero() {
		return nil, errors.Newf("slice def %q: zero stamp", def.Name)
	}

	x := p.store.Taxonomy()
	if _, err := x.Node(src); err != nil {
		return nil, err
	}
	dstNode, err := x.Node(dst)
	if err != nil {
		return nil, err
	}
	if src == dst {
		return nil, errors.Newf("slice def %q: source and destination are both %q", def.Name, src)
	}
	for _, tf := range def.Types {
		if !x.Registry().Has(tf.TypeName) {
			return nil, errors.NewNotFoundError("slice def %q: data type %q is not registered", def.Name, tf.TypeName)
		}
		if tf.Keep == nil {
			return nil, errors.Newf("slice def %q: no sampler for %q", def.Name, tf.TypeName)
		}
		if !dstNode.HostsType(tf.TypeName) {
			return nil, errors.WithStack(&errors.UnhostedTypeError{
				Node:     dstNode.Path(),
				TypeName: tf.TypeName,
				Hosted:   dstNode.Hosts(),
			})
		}
	}

	result := &Result{Def: def.Name, Source: src, Dest: dst, At: at}
	for _, tf := range def.Types {
		objects, err := p.store.ListObjects(ctx, src, tf.TypeName)
		if err != nil {
			return nil, err
		}
		for _, obj := range objects {
			art, err := p.store.GetLatestAtOrBefore(ctx, src, obj, at)
			if errors.IsNotFound(err) {
				// Listed objects may still have nothing at or before the
				// stamp.
				continue
			}
			if err != nil {
				return nil, err
			}

			sampled, err := tf.Keep.Sample(art.Table)
			if err != nil {
				return nil, errors.Wrapf(err, "sampling %s@%s", obj, art.Stamp)
			}

			count := Count{
				Object:  obj,
				Stamp:   art.Stamp,
				RowsIn:  art.Table.NumRows(),
				RowsOut: sampled.NumRows(),
			}
			if sampled.NumRows() > 0 {
				addr, err := p.writeExcerpt(dstNode, obj, art.Stamp, sampled)
				if err != nil {
					return nil, errors.Wrapf(err, "projecting %s@%s into %q", obj, art.Stamp, dst)
				}
				count.Address = addr
				count.Written = true
			}
			result.Counts = append(result.Counts, count)
		}
	}

	written := 0
	for _, c := range result.Counts {
		if c.Written {
			written++
		}
	}
	p.logger.Infow("slice projected",
		"def", def.Name,
		"source", src,
		"dest", dst,
		"stamp", at.String(),
		"objects", len(result.Counts),
		"written", written,
	)
	return result, nil
}

// writeExcerpt validates the sample against the type's schema, resolves its
// destination address, and lands it atomically. Excerpts bypass Put, so
// schema validation happens here instead.
func (p *Projector) writeExcerpt(dstNode *hub.Node, obj store.Object, at stamp.Stamp, sampled *tabular.Table) (hub.Address, error) {
	x := p.store.Taxonomy()
	if err := x.Registry().Validate(obj.TypeName, sampled); err != nil {
		return "", err
	}
	addr, err := x.ResolveAt(dstNode, obj.TypeName, obj.LogicalID, at)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := p.codec.Encode(&buf, sampled); err != nil {
		return "", errors.Wrap(err, "encoding excerpt")
	}
	if err := store.WriteBlob(p.store.Filesystem(), string(addr), buf.Bytes()); err != nil {
		return "", err
	}
	return addr, nil
}
