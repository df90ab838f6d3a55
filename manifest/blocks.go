package manifest

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/flow"
	"github.com/causeway-data/causeway/hub"
	"github.com/causeway-data/causeway/schema"
	"github.com/causeway-data/causeway/store"
)

// manifestFile is the HCL wire shape of a whole manifest.
type manifestFile struct {
	Version string      `hcl:"causeway_version"`
	Types   []typeBlock `hcl:"type,block"`
	Hubs    []hubBlock  `hcl:"hub,block"`
	Steps   []stepBlock `hcl:"step,block"`
}

// typeBlock is one `type "<name>" { ... }` declaration.
type typeBlock struct {
	Name             string     `hcl:"name,label"`
	RequiredColumns  []string   `hcl:"required_columns"`
	AnnotatedColumns []string   `hcl:"annotated_columns,optional"`
	RowKey           []string   `hcl:"row_key,optional"`
	Kinds            *cty.Value `hcl:"kinds,optional"`
	FilenamePattern  string     `hcl:"filename_pattern"`
	AnnotationPolicy string     `hcl:"annotation_policy,optional"`
}

func (b typeBlock) typeDef() (schema.TypeDef, error) {
	pattern, err := schema.ParsePattern(b.FilenamePattern)
	if err != nil {
		return schema.TypeDef{}, errors.Wrapf(err, "type %q", b.Name)
	}
	kinds, err := kindsFromValue(b.Name, b.Kinds)
	if err != nil {
		return schema.TypeDef{}, err
	}
	return schema.TypeDef{
		Name:             b.Name,
		RequiredColumns:  b.RequiredColumns,
		AnnotatedColumns: b.AnnotatedColumns,
		RowKey:           b.RowKey,
		Kinds:            kinds,
		FilenamePattern:  pattern,
		AnnotationPolicy: schema.AnnotationPolicy(b.AnnotationPolicy),
	}, nil
}

// kindsFromValue converts the `kinds` object attribute into the registry's
// column-to-kind map. HCL hands the attribute over as a cty value whose
// keys may be quoted column names; only the shape is checked here, the
// kind names themselves are validated by Register.
func kindsFromValue(typeName string, v *cty.Value) (map[string]schema.Kind, error) {
	if v == nil || v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, errors.Newf("type %q: kinds must be an object of column = kind pairs, got %s",
			typeName, ty.FriendlyName())
	}
	if v.LengthInt() == 0 {
		return nil, nil
	}
	kinds := make(map[string]schema.Kind, v.LengthInt())
	for col, kv := range v.AsValueMap() {
		if !kv.Type().Equals(cty.String) {
			return nil, errors.Newf("type %q: kind for column %q must be a string, got %s",
				typeName, col, kv.Type().FriendlyName())
		}
		kinds[col] = schema.Kind(kv.AsString())
	}
	return kinds, nil
}

// hubBlock is one `hub "<name>" { ... }` declaration. Nested hub blocks
// declare child nodes.
type hubBlock struct {
	Name  string     `hcl:"name,label"`
	Hosts []string   `hcl:"hosts,optional"`
	Hubs  []hubBlock `hcl:"hub,block"`
}

func addHub(taxonomy *hub.Taxonomy, block hubBlock, parentPath string) error {
	path, err := taxonomy.AddNode(block.Name, parentPath, block.Hosts)
	if err != nil {
		return err
	}
	for _, child := range block.Hubs {
		if err := addHub(taxonomy, child, path); err != nil {
			return err
		}
	}
	return nil
}

// stepBlock is one `step "<name>" { ... }` declaration.
type stepBlock struct {
	Name       string       `hcl:"name,label"`
	Output     *objectRef   `hcl:"output,block"`
	Inputs     []inputBlock `hcl:"input,block"`
	Logic      string       `hcl:"logic,optional"`
	Optional   bool         `hcl:"optional,optional"`
	Overwrite  *bool        `hcl:"overwrite,optional"`
	MergePrior bool         `hcl:"merge_prior,optional"`
}

// objectRef names a logical object and optionally the hub node holding it.
// A blank hub is inferred when exactly one node hosts the type.
type objectRef struct {
	Type string `hcl:"type"`
	ID   string `hcl:"id"`
	Hub  string `hcl:"hub,optional"`
}

// inputBlock is one named input binding of a step.
type inputBlock struct {
	Name   string `hcl:"name,label"`
	Type   string `hcl:"type"`
	ID     string `hcl:"id"`
	Hub    string `hcl:"hub,optional"`
	Offset int    `hcl:"offset,optional"`
}

func (b stepBlock) step(taxonomy *hub.Taxonomy) (flow.Step, error) {
	if b.Output == nil {
		return flow.Step{}, errors.Newf("step %q has no output block", b.Name)
	}
	output, err := bindingFor(taxonomy, b.Name, "output", *b.Output, 0)
	if err != nil {
		return flow.Step{}, err
	}
	inputs := make([]flow.Binding, 0, len(b.Inputs))
	for _, in := range b.Inputs {
		ref := objectRef{Type: in.Type, ID: in.ID, Hub: in.Hub}
		binding, err := bindingFor(taxonomy, b.Name, in.Name, ref, in.Offset)
		if err != nil {
			return flow.Step{}, err
		}
		inputs = append(inputs, binding)
	}
	return flow.Step{
		Name:       b.Name,
		Output:     output,
		Inputs:     inputs,
		Logic:      b.Logic,
		Optional:   b.Optional,
		Overwrite:  b.Overwrite,
		MergePrior: b.MergePrior,
	}, nil
}

// bindingFor resolves one object reference into a step binding. slot names
// the reference in errors: "output" or the input's binding name. The hub
// node must host the referenced type, checked here so a bad declaration
// fails at load instead of on the first run that touches it.
func bindingFor(x *hub.Taxonomy, stepName, slot string, ref objectRef, offset int) (flow.Binding, error) {
	if !x.Registry().Has(ref.Type) {
		return flow.Binding{}, errors.Newf("step %q %s: unknown type %q", stepName, slot, ref.Type)
	}

	nodePath := ref.Hub
	if nodePath == "" {
		node, err := x.HostingNode(ref.Type)
		if err != nil {
			return flow.Binding{}, errors.Wrapf(err, "step %q %s", stepName, slot)
		}
		nodePath = node.Path()
	} else {
		node, err := x.Node(nodePath)
		if err != nil {
			return flow.Binding{}, errors.Wrapf(err, "step %q %s", stepName, slot)
		}
		if !node.HostsType(ref.Type) {
			unhosted := errors.WithStack(&errors.UnhostedTypeError{
				Node:     nodePath,
				TypeName: ref.Type,
				Hosted:   node.Hosts(),
			})
			return flow.Binding{}, errors.Wrapf(unhosted, "step %q %s", stepName, slot)
		}
	}

	return flow.Binding{
		Name:   slot,
		Object: store.Object{TypeName: ref.Type, LogicalID: ref.ID},
		Node:   nodePath,
		Offset: offset,
	}, nil
}
