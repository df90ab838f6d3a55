// Package tabular holds the in-memory table model artifacts are made of:
// an ordered header of named columns and rows of string cells, exactly the
// shape that arrives from and returns to spreadsheet exports. Typing of
// cell values is the schema registry's concern, not the table's.
package tabular

import (
	"strings"

	"github.com/causeway-data/causeway/errors"
)

// Table is an ordered set of named columns and rows of string cells.
// Cell values keep their source text; blank (whitespace-only) cells mean
// "not filled", which the annotation policy relies on.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given column header. Column names
// must be non-blank and unique.
func New(columns []string) (*Table, error) {
	if len(columns) == 0 {
		return nil, errors.New("table needs at least one column")
	}
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if Blank(name) {
			return nil, errors.Newf("column %d has a blank name", i)
		}
		if _, dup := index[name]; dup {
			return nil, errors.Newf("duplicate column %q", name)
		}
		index[name] = i
	}
	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
	}, nil
}

// MustNew is New for fixtures known to be valid. It panics on error.
func MustNew(columns []string) *Table {
	t, err := New(columns)
	if err != nil {
		panic(err)
	}
	return t
}

// Columns returns a copy of the column header in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether name is a column of t.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of name in the header.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// NumColumns returns the header width.
func (t *Table) NumColumns() int { return len(t.columns) }

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.rows) }

// AppendRow adds a row. The cell count must match the header width.
func (t *Table) AppendRow(cells []string) error {
	if len(cells) != len(t.columns) {
		return errors.Newf("row has %d cells, header has %d columns", len(cells), len(t.columns))
	}
	t.rows = append(t.rows, append([]string(nil), cells...))
	return nil
}

// MustAppendRow is AppendRow for fixtures known to be valid.
func (t *Table) MustAppendRow(cells ...string) *Table {
	if err := t.AppendRow(cells); err != nil {
		panic(err)
	}
	return t
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// At returns the cell at (row, column name).
func (t *Table) At(row int, column string) (string, bool) {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.rows) {
		return "", false
	}
	return t.rows[row][i], true
}

// SetAt overwrites the cell at (row, column name).
func (t *Table) SetAt(row int, column string, value string) error {
	i, ok := t.index[column]
	if !ok {
		return errors.Newf("no column %q", column)
	}
	if row < 0 || row >= len(t.rows) {
		return errors.Newf("row %d out of range (table has %d rows)", row, len(t.rows))
	}
	t.rows[row][i] = value
	return nil
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	c := &Table{
		columns: append([]string(nil), t.columns...),
		index:   make(map[string]int, len(t.index)),
		rows:    make([][]string, len(t.rows)),
	}
	for name, i := range t.index {
		c.index[name] = i
	}
	for i, row := range t.rows {
		c.rows[i] = append([]string(nil), row...)
	}
	return c
}

// Equal reports whether two tables have identical headers and cells in
// identical order.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.columns) != len(o.columns) || len(t.rows) != len(o.rows) {
		return false
	}
	for i := range t.columns {
		if t.columns[i] != o.columns[i] {
			return false
		}
	}
	for i := range t.rows {
		for j := range t.rows[i] {
			if t.rows[i][j] != o.rows[i][j] {
				return false
			}
		}
	}
	return true
}

// AppendTable appends all rows of o to t. Headers must match exactly; this
// is what part-file concatenation relies on.
func (t *Table) AppendTable(o *Table) error {
	if len(t.columns) != len(o.columns) {
		return errors.Newf("header mismatch: %d vs %d columns", len(t.columns), len(o.columns))
	}
	for i := range t.columns {
		if t.columns[i] != o.columns[i] {
			return errors.Newf("header mismatch at %d: %q vs %q", i, t.columns[i], o.columns[i])
		}
	}
	for _, row := range o.rows {
		t.rows = append(t.rows, append([]string(nil), row...))
	}
	return nil
}

// Blank reports whether a cell value is empty or whitespace-only.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
