package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/schema"
	"github.com/causeway-data/causeway/stamp"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()

	pattern, err := schema.ParsePattern("{id.snake}.{stamp}.csv")
	require.NoError(t, err)

	require.NoError(t, r.Register(schema.TypeDef{
		Name:            "work_items",
		RequiredColumns: []string{"Task"},
		RowKey:          []string{"Task"},
		FilenamePattern: pattern,
	}))
	require.NoError(t, r.Register(schema.TypeDef{
		Name:            "staffing_plans",
		RequiredColumns: []string{"Role"},
		FilenamePattern: pattern,
	}))
	return r
}

func testTaxonomy(t *testing.T) *Taxonomy {
	t.Helper()
	x := NewTaxonomy(testRegistry(t))

	_, err := x.AddNode("sourceA", "", []string{"work_items"})
	require.NoError(t, err)
	_, err = x.AddNode("plans", "sourceA", []string{"staffing_plans"})
	require.NoError(t, err)
	_, err = x.AddNode("publicationP1", "", nil)
	require.NoError(t, err)
	return x
}

func TestAddNodeBuildsTree(t *testing.T) {
	x := testTaxonomy(t)

	root, err := x.Node("sourceA")
	require.NoError(t, err)
	assert.Equal(t, "sourceA", root.Name())
	assert.Equal(t, "sourceA", root.Path())
	assert.Nil(t, root.Parent())
	require.Len(t, root.Children(), 1)

	child, err := x.Node("sourceA/plans")
	require.NoError(t, err)
	assert.Equal(t, "plans", child.Name())
	assert.Equal(t, "sourceA/plans", child.Path())
	assert.Same(t, root, child.Parent())

	assert.Len(t, x.Roots(), 2)
}

func TestAddNodeRejections(t *testing.T) {
	x := testTaxonomy(t)

	tests := []struct {
		name   string
		node   string
		parent string
		hosts  []string
	}{
		{"blank name", "  ", "", nil},
		{"path separator", "a/b", "", nil},
		{"reserved underscore", "_snapshots", "", nil},
		{"dots", "..", "", nil},
		{"duplicate path", "sourceA", "", nil},
		{"unknown parent", "x", "ghost", nil},
		{"unregistered type", "x", "", []string{"ghost_type"}},
		{"duplicate host", "x", "", []string{"work_items", "work_items"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.AddNode(tt.node, tt.parent, tt.hosts)
			assert.Error(t, err)
		})
	}
}

func TestHostingIsNotInherited(t *testing.T) {
	x := testTaxonomy(t)

	child, err := x.Node("sourceA/plans")
	require.NoError(t, err)

	// The parent hosts work_items; the child must not.
	assert.True(t, child.HostsType("staffing_plans"))
	assert.False(t, child.HostsType("work_items"))

	_, err = x.Resolve("sourceA/plans", "work_items", "ProductX", stamp.MustParse("230421"))
	require.Error(t, err)
	assert.True(t, errors.IsUnhostedType(err))

	var unhosted *errors.UnhostedTypeError
	require.True(t, errors.As(err, &unhosted))
	assert.Equal(t, "sourceA/plans", unhosted.Node)
	assert.Equal(t, []string{"staffing_plans"}, unhosted.Hosted)
}

func TestResolveAddress(t *testing.T) {
	x := testTaxonomy(t)
	at := stamp.MustParse("230421")

	addr, err := x.Resolve("sourceA", "work_items", "ProductX", at)
	require.NoError(t, err)
	assert.Equal(t, Address("sourceA/work_items/product_x.230421.csv"), addr)

	nested, err := x.Resolve("sourceA/plans", "staffing_plans", "ProductX", at)
	require.NoError(t, err)
	assert.Equal(t, Address("sourceA/plans/staffing_plans/product_x.230421.csv"), nested)
}

func TestResolveDeterministicAndInjective(t *testing.T) {
	x := testTaxonomy(t)
	at := stamp.MustParse("230421")

	first, err := x.Resolve("sourceA", "work_items", "ProductX", at)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := x.Resolve("sourceA", "work_items", "ProductX", at)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	seen := map[Address]string{first: "base"}
	variants := []struct {
		label string
		id    string
		at    stamp.Stamp
	}{
		{"different id", "ProductY", at},
		{"different stamp", "ProductX", at.AddDays(1)},
		{"different id and stamp", "ProductY", at.AddDays(1)},
	}
	for _, v := range variants {
		addr, err := x.Resolve("sourceA", "work_items", v.id, v.at)
		require.NoError(t, err)
		prev, dup := seen[addr]
		assert.False(t, dup, "%s collides with %s at %s", v.label, prev, addr)
		seen[addr] = v.label
	}
}

func TestResolveRejectsBadInputs(t *testing.T) {
	x := testTaxonomy(t)
	at := stamp.MustParse("230421")

	_, err := x.Resolve("ghost", "work_items", "ProductX", at)
	assert.True(t, errors.IsNotFound(err))

	_, err = x.Resolve("sourceA", "work_items", "", at)
	assert.Error(t, err)

	_, err = x.Resolve("sourceA", "work_items", "a/b", at)
	assert.Error(t, err)

	_, err = x.Resolve("sourceA", "work_items", "..secret", at)
	assert.Error(t, err)

	_, err = x.Resolve("sourceA", "work_items", "ProductX", stamp.Stamp{})
	assert.Error(t, err)
}

func TestNodeNotFoundCarriesHint(t *testing.T) {
	x := testTaxonomy(t)

	_, err := x.Node("sourceB")
	require.Error(t, err)
	hints := errors.GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Contains(t, hints[0], "sourceA")
}

func TestWalkVisitsDepthFirst(t *testing.T) {
	x := testTaxonomy(t)

	var visited []string
	require.NoError(t, x.Walk(func(n *Node) error {
		visited = append(visited, n.Path())
		return nil
	}))
	assert.Equal(t, []string{"sourceA", "sourceA/plans", "publicationP1"}, visited)
}
