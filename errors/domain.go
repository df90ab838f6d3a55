package errors

import (
	"fmt"
	"strings"
)

// Sentinels for the engine's error taxonomy. Each has a payload-carrying
// type below whose Is method hooks the sentinel, so callers can use either
// errors.Is with the sentinel or errors.As with the type.
var (
	ErrDuplicateType     = New("data type already registered")
	ErrSchemaViolation   = New("schema violation")
	ErrUnhostedType      = New("data type not hosted by hub node")
	ErrDuplicateArtifact = New("artifact already exists")
	ErrRowKeyAmbiguity   = New("row key not unique")
	ErrSelfReference     = New("step reads its own output at the run stamp")
	ErrFutureReference   = New("input binding has a positive stamp offset")
	ErrCyclicDependency  = New("cyclic step dependency")
	ErrUnresolvedInput   = New("unresolved step input")
)

// DuplicateTypeError is raised by schema registration when a type name is
// already taken. Registration-time only.
type DuplicateTypeError struct {
	TypeName string
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("data type %q already registered", e.TypeName)
}

func (e *DuplicateTypeError) Is(target error) bool { return target == ErrDuplicateType }

// NewDuplicateTypeError creates a DuplicateTypeError for typeName.
func NewDuplicateTypeError(typeName string) error {
	return WithStack(&DuplicateTypeError{TypeName: typeName})
}

// IsDuplicateType reports whether err is or wraps a DuplicateTypeError.
func IsDuplicateType(err error) bool {
	return err != nil && Is(err, ErrDuplicateType)
}

// KindViolation records one cell whose value does not satisfy the column's
// declared kind.
type KindViolation struct {
	Column string
	Kind   string
	Row    int // zero-based data row index
	Value  string
}

func (v KindViolation) String() string {
	return fmt.Sprintf("column %q row %d: %q is not a valid %s", v.Column, v.Row, v.Value, v.Kind)
}

// SchemaViolationError reports every schema problem found in one artifact:
// all missing required columns and all cell kind violations, never just the
// first.
type SchemaViolationError struct {
	TypeName       string
	MissingColumns []string
	KindViolations []KindViolation
}

func (e *SchemaViolationError) Error() string {
	var parts []string
	if len(e.MissingColumns) > 0 {
		parts = append(parts, fmt.Sprintf("missing required columns [%s]", strings.Join(e.MissingColumns, ", ")))
	}
	for _, v := range e.KindViolations {
		parts = append(parts, v.String())
	}
	if len(parts) == 0 {
		parts = append(parts, "no violations recorded")
	}
	return fmt.Sprintf("schema violation for type %q: %s", e.TypeName, strings.Join(parts, "; "))
}

func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

// IsSchemaViolation reports whether err is or wraps a SchemaViolationError.
func IsSchemaViolation(err error) bool {
	return err != nil && Is(err, ErrSchemaViolation)
}

// UnhostedTypeError is raised when resolving a data type against a hub node
// that does not host it. Hosting is never inherited from ancestor nodes, so
// the node's own hosted set is included as the suggestion list.
type UnhostedTypeError struct {
	Node     string
	TypeName string
	Hosted   []string
}

func (e *UnhostedTypeError) Error() string {
	if len(e.Hosted) == 0 {
		return fmt.Sprintf("hub node %q does not host type %q (node hosts no types)", e.Node, e.TypeName)
	}
	return fmt.Sprintf("hub node %q does not host type %q (hosts: %s)", e.Node, e.TypeName, strings.Join(e.Hosted, ", "))
}

func (e *UnhostedTypeError) Is(target error) bool { return target == ErrUnhostedType }

// IsUnhostedType reports whether err is or wraps an UnhostedTypeError.
func IsUnhostedType(err error) bool {
	return err != nil && Is(err, ErrUnhostedType)
}

// DuplicateArtifactError is raised by a put at an exact (type, id, stamp) key
// that already holds an artifact, when overwrite was not requested.
type DuplicateArtifactError struct {
	TypeName  string
	LogicalID string
	Stamp     string
}

func (e *DuplicateArtifactError) Error() string {
	return fmt.Sprintf("artifact %s/%s@%s already exists and overwrite is not set", e.TypeName, e.LogicalID, e.Stamp)
}

func (e *DuplicateArtifactError) Is(target error) bool { return target == ErrDuplicateArtifact }

// IsDuplicateArtifact reports whether err is or wraps a DuplicateArtifactError.
func IsDuplicateArtifact(err error) bool {
	return err != nil && Is(err, ErrDuplicateArtifact)
}

// RowKeyAmbiguityError is raised by the merge engine when the configured
// natural key is not unique within one of the two tables being merged.
type RowKeyAmbiguityError struct {
	Table      string // "prior" or "fresh"
	KeyColumns []string
	KeyValue   string
	Count      int
}

func (e *RowKeyAmbiguityError) Error() string {
	return fmt.Sprintf("row key [%s] value %q appears %d times in %s artifact",
		strings.Join(e.KeyColumns, ", "), e.KeyValue, e.Count, e.Table)
}

func (e *RowKeyAmbiguityError) Is(target error) bool { return target == ErrRowKeyAmbiguity }

// IsRowKeyAmbiguity reports whether err is or wraps a RowKeyAmbiguityError.
func IsRowKeyAmbiguity(err error) bool {
	return err != nil && Is(err, ErrRowKeyAmbiguity)
}

// SelfReferenceError is the registration-time rejection of a step whose
// offset-0 input names the step's own output object: reading your own
// current-stamp output is a pipeline disguised as a workflow.
type SelfReferenceError struct {
	Step      string
	Input     string
	TypeName  string
	LogicalID string
}

func (e *SelfReferenceError) Error() string {
	return fmt.Sprintf("step %q input %q reads the step's own output %s/%s at offset 0",
		e.Step, e.Input, e.TypeName, e.LogicalID)
}

func (e *SelfReferenceError) Is(target error) bool { return target == ErrSelfReference }

// IsSelfReference reports whether err is or wraps a SelfReferenceError.
func IsSelfReference(err error) bool {
	return err != nil && Is(err, ErrSelfReference)
}

// FutureReferenceError is the registration-time rejection of an input
// binding with a positive stamp offset.
type FutureReferenceError struct {
	Step   string
	Input  string
	Offset int
}

func (e *FutureReferenceError) Error() string {
	return fmt.Sprintf("step %q input %q has positive offset %+d", e.Step, e.Input, e.Offset)
}

func (e *FutureReferenceError) Is(target error) bool { return target == ErrFutureReference }

// IsFutureReference reports whether err is or wraps a FutureReferenceError.
func IsFutureReference(err error) bool {
	return err != nil && Is(err, ErrFutureReference)
}

// CyclicDependencyError is raised by the executor's same-stamp dependency
// graph when steps form a cycle. Members holds the step names on the cycle
// in walk order.
type CyclicDependencyError struct {
	Members []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency among steps: %s", strings.Join(e.Members, " -> "))
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrCyclicDependency }

// IsCyclicDependency reports whether err is or wraps a CyclicDependencyError.
func IsCyclicDependency(err error) bool {
	return err != nil && Is(err, ErrCyclicDependency)
}

// UnresolvedInputError is raised per run when a required input binding has
// no artifact at or before the resolved stamp. Optional steps downgrade this
// to a skip.
type UnresolvedInputError struct {
	Step      string
	Input     string
	TypeName  string
	LogicalID string
	Stamp     string
}

func (e *UnresolvedInputError) Error() string {
	return fmt.Sprintf("step %q input %q: no artifact for %s/%s at or before %s",
		e.Step, e.Input, e.TypeName, e.LogicalID, e.Stamp)
}

func (e *UnresolvedInputError) Is(target error) bool { return target == ErrUnresolvedInput }

// IsUnresolvedInput reports whether err is or wraps an UnresolvedInputError.
func IsUnresolvedInput(err error) bool {
	return err != nil && Is(err, ErrUnresolvedInput)
}
