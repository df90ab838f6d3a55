package flow

import (
	"strings"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/store"
)

// ValidateStep rejects structurally broken steps at registration time, long
// before any run. Two rejections define the engine's causality rule:
//
//   - an offset-0 input naming the step's own output object would make the
//     step read what it is about to write (SelfReferenceError);
//   - a positive offset would read the future (FutureReferenceError).
func ValidateStep(st Step) error {
	if strings.TrimSpace(st.Name) == "" {
		return errors.New("step name must not be blank")
	}
	if err := validateBinding(st.Name, "output", st.Output); err != nil {
		return err
	}
	if st.Output.Offset != 0 {
		return errors.Newf("step %q output cannot carry an offset", st.Name)
	}

	seen := make(map[string]struct{}, len(st.Inputs))
	for _, in := range st.Inputs {
		if strings.TrimSpace(in.Name) == "" {
			return errors.Newf("step %q has an unnamed input", st.Name)
		}
		if _, dup := seen[in.Name]; dup {
			return errors.Newf("step %q declares input %q twice", st.Name, in.Name)
		}
		seen[in.Name] = struct{}{}

		if err := validateBinding(st.Name, "input "+in.Name, in); err != nil {
			return err
		}
		if in.Offset > 0 {
			return errors.WithStack(&errors.FutureReferenceError{
				Step:   st.Name,
				Input:  in.Name,
				Offset: in.Offset,
			})
		}
		if in.Offset == 0 && in.Object == st.Output.Object {
			return errors.WithStack(&errors.SelfReferenceError{
				Step:      st.Name,
				Input:     in.Name,
				TypeName:  in.Object.TypeName,
				LogicalID: in.Object.LogicalID,
			})
		}
	}
	return nil
}

// ValidateSteps checks a whole step set: every step individually, unique
// step names, and a unique producer per output object so the same-stamp
// dependency graph is well defined.
func ValidateSteps(steps []Step) error {
	names := make(map[string]struct{}, len(steps))
	producers := make(map[store.Object]string, len(steps))
	for _, st := range steps {
		if err := ValidateStep(st); err != nil {
			return err
		}
		if _, dup := names[st.Name]; dup {
			return errors.Newf("step %q declared twice", st.Name)
		}
		names[st.Name] = struct{}{}

		key := st.Output.Object
		if owner, dup := producers[key]; dup {
			return errors.Newf("steps %q and %q both produce %s; one output object has one producer per run",
				owner, st.Name, key)
		}
		producers[key] = st.Name
	}
	return nil
}

func validateBinding(step, slot string, b Binding) error {
	if strings.TrimSpace(b.Object.TypeName) == "" {
		return errors.Newf("step %q %s has no data type", step, slot)
	}
	if strings.TrimSpace(b.Object.LogicalID) == "" {
		return errors.Newf("step %q %s has no logical id", step, slot)
	}
	if strings.TrimSpace(b.Node) == "" {
		return errors.Newf("step %q %s has no hub node", step, slot)
	}
	return nil
}
