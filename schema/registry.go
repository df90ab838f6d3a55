// Package schema is the registry of data type declarations: which columns
// an artifact of a type must carry, which columns users may annotate, what
// identifies a row, and how artifact filenames are generated. Declarations
// are registered once at process start and read-only afterwards; a Registry
// is an explicit value, never package state, so tests can hold several
// independent registries at once.
package schema

import (
	"sort"
	"strings"
	"sync"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/tabular"
)

// AnnotationPolicy selects how the merge engine decides that a prior cell
// holds a user annotation. The zero value defers to the process default.
type AnnotationPolicy string

const (
	// PolicyDefault defers to the configured process-wide default.
	PolicyDefault AnnotationPolicy = ""
	// PolicyNonBlank treats any non-blank value in an annotated column as a
	// user annotation. This is the only policy shipped.
	PolicyNonBlank AnnotationPolicy = "non-blank"
)

// ParseAnnotationPolicy validates a policy name from a declaration.
func ParseAnnotationPolicy(s string) (AnnotationPolicy, error) {
	switch AnnotationPolicy(s) {
	case PolicyDefault, PolicyNonBlank:
		return AnnotationPolicy(s), nil
	default:
		return "", errors.Newf("unknown annotation policy %q (want %q)", s, PolicyNonBlank)
	}
}

// TypeDef declares one data type. Immutable once registered.
type TypeDef struct {
	Name             string
	RequiredColumns  []string
	AnnotatedColumns []string
	RowKey           []string
	Kinds            map[string]Kind
	FilenamePattern  Pattern
	AnnotationPolicy AnnotationPolicy
}

// Registry holds the data type declarations for one engine instance.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeDef
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]TypeDef)}
}

// Register adds a type declaration. It fails with a DuplicateTypeError when
// the name is taken and rejects structurally invalid declarations, so every
// registered type is usable as declared.
func (r *Registry) Register(def TypeDef) error {
	if err := checkTypeName(def.Name); err != nil {
		return err
	}
	if def.FilenamePattern.IsZero() {
		return errors.Newf("type %q: filename pattern is required", def.Name)
	}
	if err := checkColumnList(def.Name, "required_columns", def.RequiredColumns); err != nil {
		return err
	}
	if err := checkColumnList(def.Name, "annotated_columns", def.AnnotatedColumns); err != nil {
		return err
	}

	required := toSet(def.RequiredColumns)
	examined := toSet(append(append([]string(nil), def.RequiredColumns...), def.AnnotatedColumns...))

	// Row identity must be guaranteed present, so key columns have to be
	// required columns.
	for _, col := range def.RowKey {
		if _, ok := required[col]; !ok {
			return errors.Newf("type %q: row_key column %q is not a required column", def.Name, col)
		}
	}

	// Pass-through columns are unexamined, so kinds may only constrain
	// required or annotated columns.
	for col, kind := range def.Kinds {
		if _, ok := examined[col]; !ok {
			return errors.Newf("type %q: kind declared for unexamined column %q", def.Name, col)
		}
		if _, err := ParseKind(string(kind)); err != nil {
			return errors.Wrapf(err, "type %q: column %q", def.Name, col)
		}
	}

	if _, err := ParseAnnotationPolicy(string(def.AnnotationPolicy)); err != nil {
		return errors.Wrapf(err, "type %q", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[def.Name]; exists {
		return errors.NewDuplicateTypeError(def.Name)
	}
	r.types[def.Name] = copyDef(def)
	r.order = append(r.order, def.Name)
	return nil
}

// Type returns the declaration for name.
func (r *Registry) Type(name string) (TypeDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.types[name]
	if !ok {
		err := errors.NewNotFoundError("data type %q is not registered", name)
		if len(r.order) > 0 {
			err = errors.WithHintf(err, "registered types: %s", strings.Join(r.sortedNamesLocked(), ", "))
		}
		return TypeDef{}, err
	}
	return copyDef(def), nil
}

// Types returns all declarations in registration order.
func (r *Registry) Types() []TypeDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TypeDef, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, copyDef(r.types[name]))
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// AnnotatedColumns returns the columns of name eligible for annotation
// merge.
func (r *Registry) AnnotatedColumns(name string) ([]string, error) {
	def, err := r.Type(name)
	if err != nil {
		return nil, err
	}
	return def.AnnotatedColumns, nil
}

// Validate checks a table against the declaration for typeName. It reports
// every missing required column and every cell kind violation in one
// SchemaViolationError, never just the first. Columns outside the declared
// required and annotated sets pass through unexamined.
func (r *Registry) Validate(typeName string, tbl *tabular.Table) error {
	def, err := r.Type(typeName)
	if err != nil {
		return err
	}
	if tbl == nil {
		return errors.Newf("type %q: nil table", typeName)
	}

	violation := &errors.SchemaViolationError{TypeName: typeName}

	for _, col := range def.RequiredColumns {
		if !tbl.HasColumn(col) {
			violation.MissingColumns = append(violation.MissingColumns, col)
		}
	}

	// Kind checks run on declared columns that are present; blanks are
	// exempt (blank means "not filled").
	kindCols := make([]string, 0, len(def.Kinds))
	for col := range def.Kinds {
		if tbl.HasColumn(col) {
			kindCols = append(kindCols, col)
		}
	}
	sort.Strings(kindCols)

	for _, col := range kindCols {
		kind := def.Kinds[col]
		for row := 0; row < tbl.NumRows(); row++ {
			value, _ := tbl.At(row, col)
			if !kind.Accepts(value) {
				violation.KindViolations = append(violation.KindViolations, errors.KindViolation{
					Column: col,
					Kind:   string(kind),
					Row:    row,
					Value:  value,
				})
			}
		}
	}

	if len(violation.MissingColumns) > 0 || len(violation.KindViolations) > 0 {
		return errors.WithStack(violation)
	}
	return nil
}

func (r *Registry) sortedNamesLocked() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

func checkTypeName(name string) error {
	if name == "" {
		return errors.New("type name is blank")
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case i > 0 && (c == '_' || (c >= '0' && c <= '9')):
		default:
			return errors.Newf("type name %q: want lowercase identifier like %q", name, "work_items")
		}
	}
	return nil
}

func checkColumnList(typeName, field string, cols []string) error {
	seen := make(map[string]struct{}, len(cols))
	for _, col := range cols {
		if tabular.Blank(col) {
			return errors.Newf("type %q: %s has a blank column name", typeName, field)
		}
		if _, dup := seen[col]; dup {
			return errors.Newf("type %q: %s lists %q twice", typeName, field, col)
		}
		seen[col] = struct{}{}
	}
	return nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}

func copyDef(def TypeDef) TypeDef {
	out := def
	out.RequiredColumns = append([]string(nil), def.RequiredColumns...)
	out.AnnotatedColumns = append([]string(nil), def.AnnotatedColumns...)
	out.RowKey = append([]string(nil), def.RowKey...)
	if def.Kinds != nil {
		out.Kinds = make(map[string]Kind, len(def.Kinds))
		for k, v := range def.Kinds {
			out.Kinds[k] = v
		}
	}
	return out
}
