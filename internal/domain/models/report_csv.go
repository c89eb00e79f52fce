package models

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// WriteCSV exports the report rows verbatim with a header row.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(r.Columns))
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(r.Columns))
		}
		for j, v := range row {
			rec[j] = v.Format()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a WriteCSV export back into rows typed by columns.
// The header must list exactly the given columns in order.
func ReadCSV(rd io.Reader, columns []Column) ([]Row, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = len(columns)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, c := range columns {
		if header[i] != c.Name {
			return nil, fmt.Errorf("header column %d is %q, want %q", i, header[i], c.Name)
		}
	}
	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows), err)
		}
		row := make(Row, len(columns))
		for j, col := range columns {
			v, err := ParseValue(col, rec[j])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", len(rows), err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
