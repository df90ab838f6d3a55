package tabular

import (
	"encoding/csv"
	"io"

	"github.com/causeway-data/causeway/errors"
)

// Codec encodes and decodes tables to a concrete spreadsheet format. CSV is
// the format shipped here; other formats plug in behind this interface.
type Codec interface {
	Decode(r io.Reader) (*Table, error)
	Encode(w io.Writer, t *Table) error
}

// CSV is the Codec for comma-separated files. The first record is the
// header; every data record must match its width.
type CSV struct {
	// Comma overrides the delimiter when non-zero.
	Comma rune
}

var _ Codec = CSV{}

// Decode reads a whole CSV document into a table.
func (c CSV) Decode(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	if c.Comma != 0 {
		reader.Comma = c.Comma
	}
	// Header width fixes the record width; the csv package enforces it.
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty document: no header record")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	t, err := New(header)
	if err != nil {
		return nil, err
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read record")
		}
		if err := t.AppendRow(record); err != nil {
			return nil, err
		}
	}
}

// Encode writes the table as a CSV document: header first, then rows.
func (c CSV) Encode(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if c.Comma != 0 {
		writer.Comma = c.Comma
	}

	if err := writer.Write(t.columns); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return errors.Wrap(err, "failed to write row")
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "failed to flush")
}
