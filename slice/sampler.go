package slice

import (
	"math/rand"
	"sort"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/tabular"
)

// Sampler thins a table. The sample carries the source header exactly and a
// subset of the source rows in source order. Sample always returns a fresh
// table; the source is never modified or aliased.
type Sampler interface {
	Sample(t *tabular.Table) (*tabular.Table, error)
}

// FirstFound keeps the first n rows. A table with fewer rows is kept whole.
func FirstFound(n int) Sampler { return firstFound{n: n} }

type firstFound struct{ n int }

func (s firstFound) Sample(t *tabular.Table) (*tabular.Table, error) {
	if s.n < 0 {
		return nil, errors.Newf("first-found sampler: negative size %d", s.n)
	}
	n := s.n
	if n > t.NumRows() {
		n = t.NumRows()
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return subset(t, rows)
}

// Random keeps up to n rows drawn uniformly without replacement. The seed
// pins the draw, so the same table always yields the same sample. Picked
// rows stay in source order.
func Random(n int, seed int64) Sampler { return randomSample{n: n, seed: seed} }

type randomSample struct {
	n    int
	seed int64
}

func (s randomSample) Sample(t *tabular.Table) (*tabular.Table, error) {
	if s.n < 0 {
		return nil, errors.Newf("random sampler: negative size %d", s.n)
	}
	if s.n >= t.NumRows() {
		return t.Clone(), nil
	}
	rng := rand.New(rand.NewSource(s.seed))
	rows := rng.Perm(t.NumRows())[:s.n]
	sort.Ints(rows)
	return subset(t, rows)
}

// Chain runs samplers left to right, each thinning the previous output.
func Chain(samplers ...Sampler) Sampler { return chain{samplers: samplers} }

type chain struct{ samplers []Sampler }

func (s chain) Sample(t *tabular.Table) (*tabular.Table, error) {
	if len(s.samplers) == 0 {
		return nil, errors.New("chain sampler has no samplers to run")
	}
	out := t
	for i, link := range s.samplers {
		var err error
		out, err = link.Sample(out)
		if err != nil {
			return nil, errors.Wrapf(err, "chain link %d", i)
		}
	}
	return out, nil
}

// Filter keeps the rows the predicate accepts. The predicate reads cells
// through t.At and must not modify the table.
func Filter(pred func(t *tabular.Table, row int) bool) Sampler {
	return filterSample{pred: pred}
}

type filterSample struct {
	pred func(t *tabular.Table, row int) bool
}

func (s filterSample) Sample(t *tabular.Table) (*tabular.Table, error) {
	if s.pred == nil {
		return nil, errors.New("filter sampler has no predicate")
	}
	var rows []int
	for i := 0; i < t.NumRows(); i++ {
		if s.pred(t, i) {
			rows = append(rows, i)
		}
	}
	return subset(t, rows)
}

// AnyOf keeps rows whose cell in the named column equals one of the values.
// A table without the column passes through whole: absence of the column
// means the filter does not apply, not that every row fails it.
func AnyOf(column string, values ...string) Sampler {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return anyOf{column: column, allowed: allowed}
}

type anyOf struct {
	column  string
	allowed map[string]struct{}
}

func (s anyOf) Sample(t *tabular.Table) (*tabular.Table, error) {
	if len(s.allowed) == 0 {
		return nil, errors.Newf("any-of sampler on %q has no values", s.column)
	}
	if !t.HasColumn(s.column) {
		return t.Clone(), nil
	}
	var rows []int
	for i := 0; i < t.NumRows(); i++ {
		cell, _ := t.At(i, s.column)
		if _, ok := s.allowed[cell]; ok {
			rows = append(rows, i)
		}
	}
	return subset(t, rows)
}

// subset builds a new table carrying the given rows of t in the given
// order.
func subset(t *tabular.Table, rows []int) (*tabular.Table, error) {
	out, err := tabular.New(t.Columns())
	if err != nil {
		return nil, err
	}
	for _, i := range rows {
		if err := out.AppendRow(t.Row(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
