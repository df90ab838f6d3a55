// Package manifest loads the HCL declaration file: the data types, the
// hub taxonomy, and the workflow steps of one engine instance. Loading
// runs every registration-time validation, so a manifest that loads
// cleanly yields a registry, a taxonomy, and steps that are ready to run.
package manifest

import (
	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/flow"
	"github.com/causeway-data/causeway/hub"
	"github.com/causeway-data/causeway/schema"
)

// supportedVersions is the declaration format range this build accepts.
// A manifest outside it was written for a different major and is refused
// before any of its declarations take effect.
var supportedVersions = mustConstraint("^1")

func mustConstraint(raw string) *semver.Constraints {
	c, err := semver.NewConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// Bundle is everything one manifest declares, validated and ready to use.
type Bundle struct {
	Version  *semver.Version
	Registry *schema.Registry
	Taxonomy *hub.Taxonomy
	Steps    []flow.Step
}

// Load parses and validates the manifest at path.
func Load(path string) (*Bundle, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "parsing manifest %s", path)
	}
	return build(file, path)
}

// LoadBytes parses and validates manifest source held in memory. The
// filename only labels diagnostics.
func LoadBytes(src []byte, filename string) (*Bundle, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "parsing manifest %s", filename)
	}
	return build(file, filename)
}

func build(file *hcl.File, path string) (*Bundle, error) {
	var f manifestFile
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return nil, errors.Wrapf(diags, "decoding manifest %s", path)
	}

	version, err := checkVersion(f.Version)
	if err != nil {
		return nil, err
	}

	registry := schema.NewRegistry()
	for _, tb := range f.Types {
		def, err := tb.typeDef()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(def); err != nil {
			return nil, err
		}
	}

	taxonomy := hub.NewTaxonomy(registry)
	for _, hb := range f.Hubs {
		if err := addHub(taxonomy, hb, ""); err != nil {
			return nil, err
		}
	}

	steps := make([]flow.Step, 0, len(f.Steps))
	for _, sb := range f.Steps {
		step, err := sb.step(taxonomy)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := flow.ValidateSteps(steps); err != nil {
		return nil, err
	}

	return &Bundle{
		Version:  version,
		Registry: registry,
		Taxonomy: taxonomy,
		Steps:    steps,
	}, nil
}

func checkVersion(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "causeway_version %q", raw)
	}
	if !supportedVersions.Check(v) {
		return nil, errors.Newf("manifest declares causeway_version %s, but this build supports %s", v, supportedVersions)
	}
	return v, nil
}
