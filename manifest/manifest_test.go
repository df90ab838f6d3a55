package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/schema"
	"github.com/causeway-data/causeway/store"
)

const fullManifest = `
causeway_version = "1.2.0"

type "work_items" {
  required_columns  = ["Task", "Owner", "Estimate"]
  annotated_columns = ["Re-route to"]
  row_key           = ["Task"]
  kinds             = { Estimate = "number" }
  filename_pattern  = "{id.snake}.{stamp}.csv"
}

type "staffing_plans" {
  required_columns  = ["Role", "Count"]
  row_key           = ["Role"]
  kinds             = { Count = "number" }
  filename_pattern  = "{id}.{stamp}.csv"
  annotation_policy = "non-blank"
}

hub "sourceA" {
  hosts = ["work_items"]

  hub "plans" {
    hosts = ["staffing_plans"]
  }
}

step "recompute_plan" {
  output {
    type = "staffing_plans"
    id   = "ProductX"
  }

  input "items" {
    type = "work_items"
    id   = "ProductX"
    hub  = "sourceA"
  }

  input "prior_plan" {
    type   = "staffing_plans"
    id     = "ProductX"
    offset = -1
  }

  merge_prior = true
}
`

// itemsDecls is the smallest declaration set the rejection tests build on.
const itemsDecls = `
type "work_items" {
  required_columns = ["Task"]
  filename_pattern = "{id}.{stamp}.csv"
}

hub "sourceA" {
  hosts = ["work_items"]
}
`

func withVersion(body string) []byte {
	return []byte("causeway_version = \"1.0.0\"\n" + body)
}

func TestLoadBytesFullManifest(t *testing.T) {
	bundle, err := LoadBytes([]byte(fullManifest), "causeway.hcl")
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", bundle.Version.String())

	def, err := bundle.Registry.Type("work_items")
	require.NoError(t, err)
	assert.Equal(t, []string{"Task", "Owner", "Estimate"}, def.RequiredColumns)
	assert.Equal(t, []string{"Re-route to"}, def.AnnotatedColumns)
	assert.Equal(t, []string{"Task"}, def.RowKey)
	assert.Equal(t, schema.KindNumber, def.Kinds["Estimate"])
	assert.Equal(t, "{id.snake}.{stamp}.csv", def.FilenamePattern.String())

	plans, err := bundle.Taxonomy.Node("sourceA/plans")
	require.NoError(t, err)
	assert.True(t, plans.HostsType("staffing_plans"))

	require.Len(t, bundle.Steps, 1)
	step := bundle.Steps[0]
	assert.Equal(t, "recompute_plan", step.Name)
	assert.Equal(t, store.Object{TypeName: "staffing_plans", LogicalID: "ProductX"}, step.Output.Object)
	assert.Equal(t, "sourceA/plans", step.Output.Node, "output hub should be inferred from the taxonomy")
	require.Len(t, step.Inputs, 2)
	assert.Equal(t, "sourceA", step.Inputs[0].Node)
	assert.Equal(t, 0, step.Inputs[0].Offset)
	assert.Equal(t, -1, step.Inputs[1].Offset)
	assert.True(t, step.MergePrior)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "causeway.hcl")
	require.NoError(t, os.WriteFile(path, []byte(fullManifest), 0o644))

	bundle, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, bundle.Steps, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	_, err := LoadBytes([]byte("causeway_version = \"2.0.0\"\n"), "causeway.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "this build supports")

	_, err = LoadBytes([]byte("causeway_version = \"not-a-version\"\n"), "causeway.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-version")
}

func TestLoadRejectsSyntaxErrors(t *testing.T) {
	_, err := LoadBytes([]byte("type \"x\" {"), "broken.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing manifest")
}

func TestLoadRejections(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name: "unknown kind name",
			src: `
type "work_items" {
  required_columns = ["Task", "Estimate"]
  kinds            = { Estimate = "decimal" }
  filename_pattern = "{id}.{stamp}.csv"
}
`,
			wantErr: "unknown column kind",
		},
		{
			name: "kind value is not a string",
			src: `
type "work_items" {
  required_columns = ["Task", "Estimate"]
  kinds            = { Estimate = 3 }
  filename_pattern = "{id}.{stamp}.csv"
}
`,
			wantErr: "must be a string",
		},
		{
			name: "pattern missing the stamp",
			src: `
type "work_items" {
  required_columns = ["Task"]
  filename_pattern = "{id}.csv"
}
`,
			wantErr: "must reference {stamp}",
		},
		{
			name: "row key outside required columns",
			src: `
type "work_items" {
  required_columns = ["Task"]
  row_key          = ["Owner"]
  filename_pattern = "{id}.{stamp}.csv"
}
`,
			wantErr: "not a required column",
		},
		{
			name: "unknown attribute in a type block",
			src: `
type "work_items" {
  required_columns = ["Task"]
  filename_pattern = "{id}.{stamp}.csv"
  retention_days   = 30
}
`,
			wantErr: "decoding manifest",
		},
		{
			name:    "hub hosting an unregistered type",
			src:     "hub \"sourceA\" {\n  hosts = [\"nope\"]\n}\n",
			wantErr: "unregistered type",
		},
		{
			name:    "step without an output block",
			src:     itemsDecls + "step \"orphan\" {\n}\n",
			wantErr: "has no output block",
		},
		{
			name: "step referencing an unknown type",
			src: itemsDecls + `
step "recompute" {
  output {
    type = "ghost_items"
    id   = "ProductX"
  }
}
`,
			wantErr: "unknown type",
		},
		{
			name: "step referencing an unknown hub",
			src: itemsDecls + `
step "recompute" {
  output {
    type = "work_items"
    id   = "ProductX"
    hub  = "sourceZ"
  }
}
`,
			wantErr: "does not exist",
		},
		{
			name: "ambiguous host needs an explicit hub",
			src: itemsDecls + `
hub "sourceB" {
  hosts = ["work_items"]
}

step "recompute" {
  output {
    type = "work_items"
    id   = "ProductX"
  }
}
`,
			wantErr: "name one explicitly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes(withVersion(tt.src), "causeway.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRejectsDuplicateTypeBlocks(t *testing.T) {
	src := withVersion(`
type "work_items" {
  required_columns = ["Task"]
  filename_pattern = "{id}.{stamp}.csv"
}

type "work_items" {
  required_columns = ["Task"]
  filename_pattern = "{id}.{stamp}.csv"
}
`)
	_, err := LoadBytes(src, "causeway.hcl")
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateType(err))
}

func TestLoadRejectsExplicitHubNotHostingType(t *testing.T) {
	src := withVersion(itemsDecls + `
type "staffing_plans" {
  required_columns = ["Role"]
  filename_pattern = "{id}.{stamp}.csv"
}

hub "plans" {
  hosts = ["staffing_plans"]
}

step "recompute" {
  output {
    type = "work_items"
    id   = "ProductX"
    hub  = "plans"
  }
}
`)
	_, err := LoadBytes(src, "causeway.hcl")
	require.Error(t, err)
	assert.True(t, errors.IsUnhostedType(err))
}

func TestLoadSurfacesCausalityRejections(t *testing.T) {
	selfRef := withVersion(itemsDecls + `
step "recompute" {
  output {
    type = "work_items"
    id   = "ProductX"
  }

  input "current" {
    type = "work_items"
    id   = "ProductX"
  }
}
`)
	_, err := LoadBytes(selfRef, "causeway.hcl")
	require.Error(t, err)
	assert.True(t, errors.IsSelfReference(err))

	futureRef := withVersion(itemsDecls + `
step "recompute" {
  output {
    type = "work_items"
    id   = "ProductX"
  }

  input "tomorrow" {
    type   = "work_items"
    id     = "Other"
    offset = 1
  }
}
`)
	_, err = LoadBytes(futureRef, "causeway.hcl")
	require.Error(t, err)
	assert.True(t, errors.IsFutureReference(err))
}

func TestLoadAcceptsQuotedKindKeys(t *testing.T) {
	src := withVersion(`
type "work_items" {
  required_columns = ["Task", "Due on"]
  kinds            = { "Due on" = "stamp" }
  filename_pattern = "{id}.{stamp}.csv"
}
`)
	bundle, err := LoadBytes(src, "causeway.hcl")
	require.NoError(t, err)

	def, err := bundle.Registry.Type("work_items")
	require.NoError(t, err)
	assert.Equal(t, schema.KindStamp, def.Kinds["Due on"])
}
