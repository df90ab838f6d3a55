// Package merge carries user annotations forward across recomputation.
// A fresh artifact replaces a prior one wholesale, except that annotated
// cells a user filled in by hand win over whatever the recomputation
// produced for the same row. Rows are matched by the type's declared row
// key, never by position.
package merge

import (
	"fmt"
	"strings"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/schema"
	"github.com/causeway-data/causeway/tabular"
)

// Spec names the columns that drive one merge: the natural key that gives
// rows their identity and the columns users are allowed to annotate.
type Spec struct {
	RowKey    []string
	Annotated []string
	Policy    schema.AnnotationPolicy
}

// Orphan records one annotation that could not be carried forward because
// its row vanished from the fresh artifact, or because the annotated column
// itself did. Orphans are warnings: the merge still succeeds.
type Orphan struct {
	RowKey string
	Column string
	Value  string
}

func (o Orphan) String() string {
	return fmt.Sprintf("annotation orphaned: row %q column %q value %q has no home in the fresh artifact",
		o.RowKey, o.Column, o.Value)
}

// Report summarizes what one merge did.
type Report struct {
	// Carried counts annotated cells whose prior value replaced the fresh
	// one. Cells that already held the same value are not counted, so
	// merging an artifact with itself reports zero.
	Carried int

	// NewRows counts fresh rows with no prior counterpart.
	NewRows int

	// DroppedRows counts prior rows with no fresh counterpart.
	DroppedRows int

	Orphans []Orphan
}

// Empty reports whether the merge changed nothing and lost nothing.
func (r *Report) Empty() bool {
	return r.Carried == 0 && r.NewRows == 0 && r.DroppedRows == 0 && len(r.Orphans) == 0
}

// Forward merges prior into fresh and returns the merged table. The fresh
// artifact dictates the result's columns, rows, and their order; prior
// contributes only annotated cell values, matched by row key. Prior rows
// missing from fresh are dropped, and any annotations they carried are
// reported as orphans.
//
// Forward is idempotent: merging a table with itself returns an equal table
// and an empty report.
func Forward(prior, fresh *tabular.Table, spec Spec) (*tabular.Table, *Report, error) {
	if prior == nil || fresh == nil {
		return nil, nil, errors.New("merge requires both a prior and a fresh table")
	}
	if len(spec.RowKey) == 0 {
		return nil, nil, errors.New("merge requires a declared row key")
	}
	for _, col := range spec.RowKey {
		if !prior.HasColumn(col) {
			return nil, nil, errors.Newf("row key column %q missing from prior artifact", col)
		}
		if !fresh.HasColumn(col) {
			return nil, nil, errors.Newf("row key column %q missing from fresh artifact", col)
		}
	}

	annotated := annotatedPredicate(spec.Policy)

	priorIdx, err := buildKeyIndex(prior, spec.RowKey, "prior")
	if err != nil {
		return nil, nil, err
	}
	freshIdx, err := buildKeyIndex(fresh, spec.RowKey, "fresh")
	if err != nil {
		return nil, nil, err
	}

	// Columns a value can be carried into, and columns whose annotations
	// are stranded because fresh no longer has them.
	var carryCols, strandedCols []string
	for _, col := range spec.Annotated {
		switch {
		case prior.HasColumn(col) && fresh.HasColumn(col):
			carryCols = append(carryCols, col)
		case prior.HasColumn(col):
			strandedCols = append(strandedCols, col)
		}
	}

	merged := fresh.Clone()
	report := &Report{}

	for i := 0; i < fresh.NumRows(); i++ {
		key := rowKey(fresh, i, spec.RowKey)
		priorRow, ok := priorIdx[key]
		if !ok {
			report.NewRows++
			continue
		}
		for _, col := range carryCols {
			pv, _ := prior.At(priorRow, col)
			if !annotated(pv) {
				continue
			}
			fv, _ := fresh.At(i, col)
			if pv == fv {
				continue
			}
			if err := merged.SetAt(i, col, pv); err != nil {
				return nil, nil, errors.Wrapf(err, "carrying annotation into row %d column %q", i, col)
			}
			report.Carried++
		}
		for _, col := range strandedCols {
			if pv, _ := prior.At(priorRow, col); annotated(pv) {
				report.Orphans = append(report.Orphans, Orphan{
					RowKey: displayKey(prior, priorRow, spec.RowKey),
					Column: col,
					Value:  pv,
				})
			}
		}
	}

	for i := 0; i < prior.NumRows(); i++ {
		key := rowKey(prior, i, spec.RowKey)
		if _, ok := freshIdx[key]; ok {
			continue
		}
		report.DroppedRows++
		for _, col := range spec.Annotated {
			if !prior.HasColumn(col) {
				continue
			}
			if pv, _ := prior.At(i, col); annotated(pv) {
				report.Orphans = append(report.Orphans, Orphan{
					RowKey: displayKey(prior, i, spec.RowKey),
					Column: col,
					Value:  pv,
				})
			}
		}
	}

	return merged, report, nil
}

// annotatedPredicate returns the cell test for the policy. Only the
// non-blank policy ships; the default resolves to it.
func annotatedPredicate(policy schema.AnnotationPolicy) func(string) bool {
	switch policy {
	case schema.PolicyNonBlank, schema.PolicyDefault:
		return func(v string) bool { return !tabular.Blank(v) }
	default:
		return func(v string) bool { return !tabular.Blank(v) }
	}
}

// buildKeyIndex maps each row's key to its index and rejects duplicate keys:
// carrying an annotation onto an ambiguous row would be a silent guess.
func buildKeyIndex(t *tabular.Table, keyCols []string, which string) (map[string]int, error) {
	idx := make(map[string]int, t.NumRows())
	counts := make(map[string]int, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		key := rowKey(t, i, keyCols)
		counts[key]++
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	for i := 0; i < t.NumRows(); i++ {
		key := rowKey(t, i, keyCols)
		if counts[key] > 1 {
			return nil, errors.WithStack(&errors.RowKeyAmbiguityError{
				Table:      which,
				KeyColumns: keyCols,
				KeyValue:   displayKey(t, i, keyCols),
				Count:      counts[key],
			})
		}
	}
	return idx, nil
}

// rowKey builds the map key for one row. The unit separator keeps composite
// keys unambiguous even when cell values contain delimiters.
func rowKey(t *tabular.Table, row int, keyCols []string) string {
	parts := make([]string, len(keyCols))
	for i, col := range keyCols {
		parts[i], _ = t.At(row, col)
	}
	return strings.Join(parts, "\x1f")
}

func displayKey(t *tabular.Table, row int, keyCols []string) string {
	parts := make([]string, len(keyCols))
	for i, col := range keyCols {
		parts[i], _ = t.At(row, col)
	}
	return strings.Join(parts, "|")
}
