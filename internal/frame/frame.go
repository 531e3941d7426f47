// Package frame holds tabular data moved between files and the warehouse.
package frame

import (
	"fmt"
	"sort"
)

// Record is one row keyed by column name.
type Record = map[string]any

// Frame is an in-memory table: ordered column names and row values in the
// same order.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// New creates an empty frame with the given columns.
func New(columns ...string) *Frame {
	return &Frame{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Append adds a row. The number of values must match the columns.
func (f *Frame) Append(values ...any) error {
	if len(values) != len(f.Columns) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.Columns))
	}
	f.Rows = append(f.Rows, values)
	return nil
}

// Slice returns rows [start, end) sharing the underlying row slices.
// Bounds are clamped to the frame.
func (f *Frame) Slice(start, end int) *Frame {
	n := f.Len()
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return &Frame{Columns: f.Columns, Rows: f.Rows[start:end]}
}

// Index returns the position of column name or -1.
func (f *Frame) Index(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns every value of the named column.
func (f *Frame) Column(name string) ([]any, error) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not in frame", name)
	}
	out := make([]any, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Values flattens the frame row by row.
func (f *Frame) Values() []any {
	out := make([]any, 0, f.Len()*len(f.Columns))
	for _, row := range f.Rows {
		out = append(out, row...)
	}
	return out
}

// Records converts the rows to column-keyed records.
func (f *Frame) Records() []Record {
	out := make([]Record, len(f.Rows))
	for i, row := range f.Rows {
		rec := make(Record, len(f.Columns))
		for j, c := range f.Columns {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Project returns a frame with exactly the given columns in that order.
// Columns missing from f are filled with nil.
func (f *Frame) Project(columns []string) *Frame {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = f.Index(c)
	}
	out := &Frame{Columns: append([]string(nil), columns...), Rows: make([][]any, len(f.Rows))}
	for r, row := range f.Rows {
		vals := make([]any, len(columns))
		for i, j := range idx {
			if j >= 0 {
				vals[i] = row[j]
			}
		}
		out.Rows[r] = vals
	}
	return out
}

// FromRecords builds a frame from records. When columns is empty the
// union of record keys is used in sorted order.
func FromRecords(columns []string, records []Record) *Frame {
	if len(columns) == 0 {
		columns = keys(records)
	}
	f := New(columns...)
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

func keys(records []Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
