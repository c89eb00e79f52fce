package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Column describes one named field of a report row.
type Column struct {
	Name      string     `json:"name"`
	Kind      ColumnKind `json:"kind"`
	Precision int32      `json:"precision,omitempty"`
}

// Row is aligned with Report.Columns.
type Row []Value

// Report is a serializable, ordered result set.
type Report struct {
	Name        string
	Title       string
	RunID       string
	GeneratedAt time.Time
	Columns     []Column
	Rows        []Row
	Total       int // row count before paging
	Page        int
	PageSize    int
	Stats       JoinStats
}

// ColumnIndex returns the position of the named column or -1.
func (r *Report) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Cell returns the value of column name in row i.
func (r *Report) Cell(i int, name string) (Value, bool) {
	idx := r.ColumnIndex(name)
	if idx < 0 || i < 0 || i >= len(r.Rows) {
		return Value{}, false
	}
	return r.Rows[i][idx], true
}

// Paginate returns a shallow copy holding one page of rows (1-based page).
// size <= 0 returns every row.
func (r *Report) Paginate(page, size int) *Report {
	out := *r
	out.Total = len(r.Rows)
	if size <= 0 {
		out.Page, out.PageSize = 1, out.Total
		return &out
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	end := start + size
	if start > len(r.Rows) {
		start = len(r.Rows)
	}
	if end > len(r.Rows) {
		end = len(r.Rows)
	}
	out.Rows = r.Rows[start:end]
	out.Page, out.PageSize = page, size
	return &out
}

type reportJSON struct {
	Name        string            `json:"name"`
	Title       string            `json:"title,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Columns     []Column          `json:"columns"`
	Total       int               `json:"total"`
	Page        int               `json:"page,omitempty"`
	PageSize    int               `json:"page_size,omitempty"`
	Stats       JoinStats         `json:"stats"`
	Rows        []json.RawMessage `json:"rows"`
}

// MarshalJSON writes rows as objects whose keys follow column order.
func (r Report) MarshalJSON() ([]byte, error) {
	total := r.Total
	if total == 0 {
		total = len(r.Rows)
	}
	out := reportJSON{
		Name:        r.Name,
		Title:       r.Title,
		RunID:       r.RunID,
		GeneratedAt: r.GeneratedAt,
		Columns:     r.Columns,
		Total:       total,
		Page:        r.Page,
		PageSize:    r.PageSize,
		Stats:       r.Stats,
		Rows:        make([]json.RawMessage, 0, len(r.Rows)),
	}
	for i, row := range r.Rows {
		b, err := marshalRow(r.Columns, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out.Rows = append(out.Rows, b)
	}
	return json.Marshal(out)
}

func (r *Report) UnmarshalJSON(b []byte) error {
	var in reportJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	rows := make([]Row, 0, len(in.Rows))
	for i, raw := range in.Rows {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		row := make(Row, len(in.Columns))
		for j, col := range in.Columns {
			v, err := decodeValue(col, obj[col.Name])
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	*r = Report{
		Name:        in.Name,
		Title:       in.Title,
		RunID:       in.RunID,
		GeneratedAt: in.GeneratedAt,
		Columns:     in.Columns,
		Rows:        rows,
		Total:       in.Total,
		Page:        in.Page,
		PageSize:    in.PageSize,
		Stats:       in.Stats,
	}
	return nil
}

func marshalRow(cols []Column, row Row) ([]byte, error) {
	if len(row) != len(cols) {
		return nil, fmt.Errorf("row has %d cells, want %d", len(row), len(cols))
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(c.Name)
		buf.Write(k)
		buf.WriteByte(':')
		v, err := row[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
