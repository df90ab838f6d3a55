package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/store"
)

func itemsBinding(name string, offset int) Binding {
	return Binding{
		Name:   name,
		Object: store.Object{TypeName: "work_items", LogicalID: "ProductX"},
		Node:   "sourceA",
		Offset: offset,
	}
}

func plansOutput() Binding {
	return Binding{
		Object: store.Object{TypeName: "staffing_plans", LogicalID: "ProductX"},
		Node:   "sourceA/plans",
	}
}

func TestValidateStepAcceptsPastSelfReference(t *testing.T) {
	// Reading your own output from an earlier stamp is the carry-forward
	// shape, not a self-reference.
	st := Step{
		Name:   "recompute_plan",
		Output: plansOutput(),
		Inputs: []Binding{{
			Name:   "prior_plan",
			Object: store.Object{TypeName: "staffing_plans", LogicalID: "ProductX"},
			Node:   "sourceA/plans",
			Offset: -1,
		}},
	}
	require.NoError(t, ValidateStep(st))
}

func TestValidateStepRejectsSelfReference(t *testing.T) {
	st := Step{
		Name:   "recompute_plan",
		Output: plansOutput(),
		Inputs: []Binding{{
			Name:   "plan",
			Object: store.Object{TypeName: "staffing_plans", LogicalID: "ProductX"},
			Node:   "sourceA/plans",
			Offset: 0,
		}},
	}
	err := ValidateStep(st)
	require.Error(t, err)
	assert.True(t, errors.IsSelfReference(err))

	var serr *errors.SelfReferenceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "recompute_plan", serr.Step)
	assert.Equal(t, "plan", serr.Input)
}

func TestValidateStepRejectsFutureReference(t *testing.T) {
	st := Step{
		Name:   "recompute_plan",
		Output: plansOutput(),
		Inputs: []Binding{itemsBinding("items", 1)},
	}
	err := ValidateStep(st)
	require.Error(t, err)
	assert.True(t, errors.IsFutureReference(err))

	var ferr *errors.FutureReferenceError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, 1, ferr.Offset)
}

func TestValidateStepStructuralRejections(t *testing.T) {
	tests := []struct {
		name string
		step Step
	}{
		{"blank name", Step{Name: "  ", Output: plansOutput()}},
		{"output without type", Step{Name: "s", Output: Binding{Object: store.Object{LogicalID: "X"}, Node: "sourceA"}}},
		{"output without id", Step{Name: "s", Output: Binding{Object: store.Object{TypeName: "work_items"}, Node: "sourceA"}}},
		{"output without node", Step{Name: "s", Output: Binding{Object: store.Object{TypeName: "work_items", LogicalID: "X"}}}},
		{"output with offset", Step{Name: "s", Output: Binding{Object: store.Object{TypeName: "work_items", LogicalID: "X"}, Node: "sourceA", Offset: -1}}},
		{"unnamed input", Step{Name: "s", Output: plansOutput(), Inputs: []Binding{itemsBinding("", -1)}}},
		{"duplicate input", Step{Name: "s", Output: plansOutput(), Inputs: []Binding{itemsBinding("items", -1), itemsBinding("items", -2)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateStep(tt.step))
		})
	}
}

func TestValidateStepsRejectsDuplicateNames(t *testing.T) {
	steps := []Step{
		{Name: "recompute_plan", Output: plansOutput()},
		{Name: "recompute_plan", Output: Binding{
			Object: store.Object{TypeName: "staffing_plans", LogicalID: "ProductY"},
			Node:   "sourceA/plans",
		}},
	}
	err := ValidateSteps(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestValidateStepsRejectsDuplicateProducers(t *testing.T) {
	steps := []Step{
		{Name: "first", Output: plansOutput()},
		{Name: "second", Output: plansOutput()},
	}
	err := ValidateSteps(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both produce")
}
