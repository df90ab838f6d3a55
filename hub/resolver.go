package hub

import (
	"path"
	"strings"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/stamp"
)

// Address is a hub-relative slash path identifying one artifact blob:
// <node path>/<type name>/<filename>. Addresses are pure derivations;
// resolving never touches storage.
type Address string

func (a Address) String() string { return string(a) }

// Resolve maps (hub node, data type, logical id, stamp) to the Address the
// artifact lives at. It fails with an UnhostedTypeError when the node does
// not itself host the type: hosting is non-inherited, ancestors do not
// count. Identical inputs always produce the identical address, and the
// type directory plus the filename pattern's mandatory {id} and {stamp}
// references keep distinct tuples from colliding.
func (x *Taxonomy) Resolve(nodePath, typeName, logicalID string, at stamp.Stamp) (Address, error) {
	node, err := x.Node(nodePath)
	if err != nil {
		return "", err
	}
	return x.resolveAt(node, typeName, logicalID, at)
}

// ResolveAt is Resolve for callers already holding the node.
func (x *Taxonomy) ResolveAt(node *Node, typeName, logicalID string, at stamp.Stamp) (Address, error) {
	return x.resolveAt(node, typeName, logicalID, at)
}

func (x *Taxonomy) resolveAt(node *Node, typeName, logicalID string, at stamp.Stamp) (Address, error) {
	if !node.HostsType(typeName) {
		return "", errors.WithStack(&errors.UnhostedTypeError{
			Node:     node.Path(),
			TypeName: typeName,
			Hosted:   node.Hosts(),
		})
	}

	def, err := x.registry.Type(typeName)
	if err != nil {
		return "", err
	}
	if err := CheckLogicalID(logicalID); err != nil {
		return "", err
	}
	if at.IsZero() {
		return "", errors.Newf("resolving %s/%s: zero stamp", typeName, logicalID)
	}

	filename := def.FilenamePattern.Render(logicalID, at)
	return Address(path.Join(node.Path(), typeName, filename)), nil
}

// CheckLogicalID rejects ids that would break address derivation. Logical
// ids become filename components, so they must stay inside one path
// segment.
func CheckLogicalID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("logical id is blank")
	}
	if strings.ContainsAny(id, "/\\") {
		return errors.Newf("logical id %q: path separators not allowed", id)
	}
	if strings.HasPrefix(id, ".") {
		return errors.Newf("logical id %q: leading dot not allowed", id)
	}
	return nil
}
