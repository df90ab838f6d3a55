package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/hub"
	causewaytest "github.com/causeway-data/causeway/internal/testing"
	"github.com/causeway-data/causeway/schema"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/tabular"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()

	pattern, err := schema.ParsePattern("{id.snake}.{stamp}.csv")
	require.NoError(t, err)

	require.NoError(t, r.Register(schema.TypeDef{
		Name:             "work_items",
		RequiredColumns:  []string{"Task", "Estimate"},
		AnnotatedColumns: []string{"Re-route to"},
		RowKey:           []string{"Task"},
		Kinds:            map[string]schema.Kind{"Estimate": schema.KindNumber},
		FilenamePattern:  pattern,
	}))
	require.NoError(t, r.Register(schema.TypeDef{
		Name:            "staffing_plans",
		RequiredColumns: []string{"Role"},
		RowKey:          []string{"Role"},
		FilenamePattern: pattern,
	}))
	return r
}

func testTaxonomy(t *testing.T) *hub.Taxonomy {
	t.Helper()
	x := hub.NewTaxonomy(testRegistry(t))

	_, err := x.AddNode("sourceA", "", []string{"work_items"})
	require.NoError(t, err)
	_, err = x.AddNode("sourceB", "", []string{"work_items"})
	require.NoError(t, err)
	_, err = x.AddNode("plans", "sourceA", []string{"staffing_plans"})
	require.NoError(t, err)
	return x
}

func newTestStore(t *testing.T, opts Options) (*Store, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	s := New(causewaytest.CreateTestDB(t), fs, testTaxonomy(t), opts, nil)
	return s, fs
}

func itemsTable(t *testing.T, rows ...[]string) *tabular.Table {
	t.Helper()
	tbl := tabular.MustNew([]string{"Task", "Estimate", "Re-route to"})
	for _, row := range rows {
		require.NoError(t, tbl.AppendRow(row))
	}
	return tbl
}

func TestPutGetRoundTrip(t *testing.T) {
	s, fs := newTestStore(t, Options{})
	ctx := context.Background()
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	at := stamp.MustParse("230421")
	tbl := itemsTable(t,
		[]string{"Task7", "3", ""},
		[]string{"Task9", "5", "U2"},
	)

	put, err := s.Put(ctx, "sourceA", obj, at, tbl, PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, hub.Address("sourceA/work_items/product_x.230421.csv"), put.Address)
	assert.Equal(t, "sourceA", put.Node)
	assert.NotEmpty(t, put.Digest)
	assert.Greater(t, put.SizeBytes, int64(0))

	// The blob landed at the resolved address.
	_, err = fs.Stat(string(put.Address))
	require.NoError(t, err)

	got, err := s.Get(ctx, "sourceA", obj, at)
	require.NoError(t, err)
	assert.True(t, tbl.Equal(got.Table))
	assert.Equal(t, put.Digest, got.Digest)
	assert.Equal(t, put.SizeBytes, got.SizeBytes)
}

func TestPutRejectsSchemaViolation(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}

	// Missing the required Estimate column.
	tbl := tabular.MustNew([]string{"Task"}).MustAppendRow("Task7")
	_, err := s.Put(context.Background(), "sourceA", obj, stamp.MustParse("230421"), tbl, PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsSchemaViolation(err))

	// Estimate fails its number kind.
	bad := itemsTable(t, []string{"Task7", "many", ""})
	_, err = s.Put(context.Background(), "sourceA", obj, stamp.MustParse("230421"), bad, PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsSchemaViolation(err))
}

func TestPutRejectsUnhostedNode(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	tbl := itemsTable(t, []string{"Task7", "3", ""})

	_, err := s.Put(context.Background(), "sourceA/plans", obj, stamp.MustParse("230421"), tbl, PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsUnhostedType(err))

	_, err = s.Put(context.Background(), "nowhere", obj, stamp.MustParse("230421"), tbl, PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestPutDuplicateKey(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	at := stamp.MustParse("230421")
	tbl := itemsTable(t, []string{"Task7", "3", ""})

	_, err := s.Put(ctx, "sourceA", obj, at, tbl, PutOptions{})
	require.NoError(t, err)

	_, err = s.Put(ctx, "sourceA", obj, at, tbl, PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateArtifact(err))

	// The key is unique across the whole hub tree, not per node.
	_, err = s.Put(ctx, "sourceB", obj, at, tbl, PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateArtifact(err))
}

func TestPutOverwrite(t *testing.T) {
	s, fs := newTestStore(t, Options{})
	ctx := context.Background()
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	at := stamp.MustParse("230421")

	first, err := s.Put(ctx, "sourceA", obj, at, itemsTable(t, []string{"Task7", "3", ""}), PutOptions{})
	require.NoError(t, err)

	second, err := s.Put(ctx, "sourceB", obj, at, itemsTable(t, []string{"Task7", "8", ""}), PutOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "sourceB", second.Node)

	// Still exactly one version at the stamp, readable under its new node.
	stamps, err := s.ListStamps(ctx, "sourceB", obj)
	require.NoError(t, err)
	require.Len(t, stamps, 1)

	got, err := s.Get(ctx, "sourceB", obj, at)
	require.NoError(t, err)
	estimate, ok := got.Table.At(0, "Estimate")
	require.True(t, ok)
	assert.Equal(t, "8", estimate)

	// The superseded blob under sourceA is gone.
	_, err = fs.Stat(string(first.Address))
	assert.True(t, os.IsNotExist(err))

	// The old node no longer resolves the artifact.
	_, err = s.Get(ctx, "sourceA", obj, at)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetScopedToNode(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	at := stamp.MustParse("230421")

	_, err := s.Put(ctx, "sourceA", obj, at, itemsTable(t, []string{"Task7", "3", ""}), PutOptions{})
	require.NoError(t, err)

	_, err = s.Get(ctx, "sourceB", obj, at)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetLatestAtOrBefore(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}

	for _, wire := range []string{"230421", "230601"} {
		tbl := itemsTable(t, []string{"Task7", "3", ""}, []string{"stamped " + wire, "1", ""})
		_, err := s.Put(ctx, "sourceA", obj, stamp.MustParse(wire), tbl, PutOptions{})
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		at   string
		want string
	}{
		{"between versions", "230510", "230421"},
		{"exact hit", "230601", "230601"},
		{"after everything", "240101", "230601"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetLatestAtOrBefore(ctx, "sourceA", obj, stamp.MustParse(tt.at))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Stamp.String())
		})
	}

	_, err := s.GetLatestAtOrBefore(ctx, "sourceA", obj, stamp.MustParse("230401"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListStampsAscending(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}

	// Inserted out of order; listed chronologically.
	for _, wire := range []string{"230601", "230421", "230515"} {
		_, err := s.Put(ctx, "sourceA", obj, stamp.MustParse(wire), itemsTable(t, []string{"Task7", "3", ""}), PutOptions{})
		require.NoError(t, err)
	}

	stamps, err := s.ListStamps(ctx, "sourceA", obj)
	require.NoError(t, err)
	require.Len(t, stamps, 3)
	assert.Equal(t, "230421", stamps[0].String())
	assert.Equal(t, "230515", stamps[1].String())
	assert.Equal(t, "230601", stamps[2].String())

	none, err := s.ListStamps(ctx, "sourceA", Object{TypeName: "work_items", LogicalID: "Nothing"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListObjects(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	at := stamp.MustParse("230421")

	for _, id := range []string{"ProductX", "ProductA"} {
		obj := Object{TypeName: "work_items", LogicalID: id}
		_, err := s.Put(ctx, "sourceA", obj, at, itemsTable(t, []string{"Task7", "3", ""}), PutOptions{})
		require.NoError(t, err)
	}

	objects, err := s.ListObjects(ctx, "sourceA", "work_items")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "ProductA", objects[0].LogicalID)
	assert.Equal(t, "ProductX", objects[1].LogicalID)

	empty, err := s.ListObjects(ctx, "sourceB", "work_items")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExists(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	at := stamp.MustParse("230421")

	ok, err := s.Exists(ctx, "sourceA", obj, at)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Put(ctx, "sourceA", obj, at, itemsTable(t, []string{"Task7", "3", ""}), PutOptions{})
	require.NoError(t, err)

	ok, err = s.Exists(ctx, "sourceA", obj, at)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyDigestsCatchesCorruption(t *testing.T) {
	s, fs := newTestStore(t, Options{VerifyDigests: true})
	ctx := context.Background()
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	at := stamp.MustParse("230421")

	put, err := s.Put(ctx, "sourceA", obj, at, itemsTable(t, []string{"Task7", "3", ""}), PutOptions{})
	require.NoError(t, err)

	f, err := fs.OpenFile(string(put.Address), os.O_WRONLY|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("Task,Estimate,Re-route to\ntampered,1,\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.Get(ctx, "sourceA", obj, at)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestConcurrentPutsSameKey(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	at := stamp.MustParse("230421")
	tbl := itemsTable(t, []string{"Task7", "3", ""})

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Put(context.Background(), "sourceA", obj, at, tbl, PutOptions{})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.IsDuplicateArtifact(err):
			lost++
		default:
			t.Fatalf("unexpected put error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, writers-1, lost)
}

func TestPutCanceledContext(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obj := Object{TypeName: "work_items", LogicalID: "ProductX"}
	_, err := s.Put(ctx, "sourceA", obj, stamp.MustParse("230421"), itemsTable(t, []string{"Task7", "3", ""}), PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
