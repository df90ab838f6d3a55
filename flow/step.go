// Package flow runs recomputation steps against the store. A step reads
// stamped inputs, applies registered business logic, and writes one output
// artifact at the run stamp. Within a run, steps connected by offset-0
// bindings execute in dependency order; everything else runs concurrently
// on a bounded worker pool.
package flow

import (
	"context"

	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/store"
	"github.com/causeway-data/causeway/tabular"
)

// Binding ties a step slot to a logical object under a hub node. Offset is
// in days relative to the run stamp: 0 means "this run's version", negative
// offsets reach back in time. Positive offsets are rejected at registration.
type Binding struct {
	Name   string
	Object store.Object
	Node   string
	Offset int
}

// Step declares one unit of recomputation.
type Step struct {
	Name   string
	Output Binding
	Inputs []Binding

	// Logic names the registered logic function. Empty defaults to the
	// step name.
	Logic string

	// Optional downgrades unresolved inputs from a failure to a skip.
	Optional bool

	// Overwrite, when set, overrides the executor's default for this
	// step's put.
	Overwrite *bool

	// MergePrior carries annotations forward from the step's most recent
	// earlier output before the put.
	MergePrior bool
}

// LogicName returns the name of the logic function the step runs.
func (s *Step) LogicName() string {
	if s.Logic != "" {
		return s.Logic
	}
	return s.Name
}

// Inputs holds a step's resolved inputs by slot name.
type Inputs map[string]*store.Artifact

// Table returns the table bound to the named slot, or nil when the slot is
// absent (possible only for optional steps that still chose to run).
func (in Inputs) Table(name string) *tabular.Table {
	art, ok := in[name]
	if !ok || art == nil {
		return nil
	}
	return art.Table
}

// Logic is a step's business logic: pure computation from resolved inputs
// to the output table. The engine owns all storage I/O around it.
type Logic func(ctx context.Context, in Inputs, runStamp stamp.Stamp) (*tabular.Table, error)
