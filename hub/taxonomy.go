// Package hub models the taxonomy of storage locations ("data hubs") and
// resolves logical objects to concrete artifact addresses. A hub node hosts
// exactly the data types declared for it; hosting is never inherited from a
// parent node, so sibling hubs cannot accidentally share storage.
package hub

import (
	"sort"
	"strings"
	"sync"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/schema"
)

// Node is one location in the hub tree. Nodes are created through
// Taxonomy.AddNode and immutable afterwards.
type Node struct {
	name     string
	path     string
	parent   *Node
	children []*Node
	hosts    []string
	hostSet  map[string]struct{}
}

// Name returns the node's own name.
func (n *Node) Name() string { return n.name }

// Path returns the slash-joined path from the root, e.g. "sourceA/plans".
func (n *Node) Path() string { return n.path }

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes in declaration order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Hosts returns the data types this node hosts, in declaration order.
func (n *Node) Hosts() []string {
	return append([]string(nil), n.hosts...)
}

// HostsType reports whether the node itself hosts typeName. Ancestors are
// never consulted.
func (n *Node) HostsType(typeName string) bool {
	_, ok := n.hostSet[typeName]
	return ok
}

// Taxonomy is the tree of hub nodes for one engine instance, bound to the
// schema registry whose types the nodes host. Like the registry it is
// loaded at process start and read-only afterwards.
type Taxonomy struct {
	mu       sync.RWMutex
	registry *schema.Registry
	roots    []*Node
	nodes    map[string]*Node
}

// NewTaxonomy creates an empty taxonomy over registry.
func NewTaxonomy(registry *schema.Registry) *Taxonomy {
	return &Taxonomy{
		registry: registry,
		nodes:    make(map[string]*Node),
	}
}

// AddNode declares a hub node. parentPath selects the parent ("" for a
// root); hosts lists the data types the node itself hosts, each of which
// must already be registered. Returns the new node's path.
func (x *Taxonomy) AddNode(name, parentPath string, hosts []string) (string, error) {
	if err := checkNodeName(name); err != nil {
		return "", err
	}

	seen := make(map[string]struct{}, len(hosts))
	for _, typeName := range hosts {
		if !x.registry.Has(typeName) {
			return "", errors.Newf("hub node %q hosts unregistered type %q", name, typeName)
		}
		if _, dup := seen[typeName]; dup {
			return "", errors.Newf("hub node %q hosts type %q twice", name, typeName)
		}
		seen[typeName] = struct{}{}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	var parent *Node
	nodePath := name
	if parentPath != "" {
		parent = x.nodes[parentPath]
		if parent == nil {
			return "", errors.NewNotFoundError("parent hub node %q does not exist", parentPath)
		}
		nodePath = parent.path + "/" + name
	}

	if _, exists := x.nodes[nodePath]; exists {
		return "", errors.Newf("hub node %q already declared", nodePath)
	}

	node := &Node{
		name:    name,
		path:    nodePath,
		parent:  parent,
		hosts:   append([]string(nil), hosts...),
		hostSet: seen,
	}
	if parent == nil {
		x.roots = append(x.roots, node)
	} else {
		parent.children = append(parent.children, node)
	}
	x.nodes[nodePath] = node
	return nodePath, nil
}

// Node returns the node at path.
func (x *Taxonomy) Node(path string) (*Node, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	node, ok := x.nodes[path]
	if !ok {
		err := errors.NewNotFoundError("hub node %q does not exist", path)
		if len(x.nodes) > 0 {
			err = errors.WithHintf(err, "declared hubs: %s", strings.Join(x.sortedPathsLocked(), ", "))
		}
		return nil, err
	}
	return node, nil
}

// Roots returns the root nodes in declaration order.
func (x *Taxonomy) Roots() []*Node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]*Node(nil), x.roots...)
}

// Walk visits every node depth-first in declaration order.
func (x *Taxonomy) Walk(visit func(*Node) error) error {
	x.mu.RLock()
	roots := append([]*Node(nil), x.roots...)
	x.mu.RUnlock()

	var walk func(*Node) error
	walk = func(n *Node) error {
		if err := visit(n); err != nil {
			return err
		}
		for _, child := range n.children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root); err != nil {
			return err
		}
	}
	return nil
}

// NodesHosting returns the nodes that host typeName, in path order.
func (x *Taxonomy) NodesHosting(typeName string) []*Node {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var hosts []*Node
	for _, p := range x.sortedPathsLocked() {
		if n := x.nodes[p]; n.HostsType(typeName) {
			hosts = append(hosts, n)
		}
	}
	return hosts
}

// HostingNode returns the single node hosting typeName. It fails when no
// node hosts the type, or when more than one does and the caller therefore
// has to name the node explicitly.
func (x *Taxonomy) HostingNode(typeName string) (*Node, error) {
	hosts := x.NodesHosting(typeName)
	switch len(hosts) {
	case 0:
		return nil, errors.Newf("no hub node hosts type %q", typeName)
	case 1:
		return hosts[0], nil
	default:
		paths := make([]string, len(hosts))
		for i, n := range hosts {
			paths[i] = n.Path()
		}
		return nil, errors.Newf("type %q is hosted by %d hub nodes (%s); name one explicitly",
			typeName, len(hosts), strings.Join(paths, ", "))
	}
}

// Registry returns the schema registry this taxonomy is bound to.
func (x *Taxonomy) Registry() *schema.Registry { return x.registry }

func (x *Taxonomy) sortedPathsLocked() []string {
	paths := make([]string, 0, len(x.nodes))
	for p := range x.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func checkNodeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("hub node name is blank")
	}
	if strings.ContainsAny(name, "/\\") {
		return errors.Newf("hub node name %q: path separators not allowed", name)
	}
	// Underscore-prefixed directories are reserved for engine-managed
	// trees (_snapshots, _runs, _rejected).
	if strings.HasPrefix(name, "_") {
		return errors.Newf("hub node name %q: leading underscore is reserved", name)
	}
	if name == "." || name == ".." {
		return errors.Newf("hub node name %q not allowed", name)
	}
	return nil
}
