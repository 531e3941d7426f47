package frame

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// WriteNDJSON writes one JSON object per row.
func (f *Frame) WriteNDJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, rec := range f.Records() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
	}
	return nil
}

// ReadNDJSON reads newline-delimited JSON objects. Numbers are kept as
// json.Number so wide decimals survive the round trip. The frame holds
// columns in order, followed by any other keys found in the input, so
// unexpected fields reach the caller instead of being dropped.
func ReadNDJSON(r io.Reader, columns []string) (*Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read NDJSON: %w", err)
	}
	if len(columns) > 0 {
		columns = withExtraKeys(columns, records)
	}
	return FromRecords(columns, records), nil
}

func withExtraKeys(columns []string, records []Record) []string {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	out := append([]string(nil), columns...)
	for _, k := range keys(records) {
		if !known[k] {
			out = append(out, k)
		}
	}
	return out
}

// WriteCSV writes a header row followed by the data rows. Nested values
// are written as JSON text and nil as an empty field.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	record := make([]string, len(f.Columns))
	for i, row := range f.Rows {
		for j, v := range row {
			s, err := FormatValue(v)
			if err != nil {
				return fmt.Errorf("row %d column %s: %w", i, f.Columns[j], err)
			}
			record[j] = s
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a CSV file whose first row holds the column names. Empty
// fields become nil.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	f := New(header...)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		row := make([]any, len(rec))
		for i, s := range rec {
			if s != "" {
				row[i] = s
			}
		}
		if err := f.Append(row...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FormatValue renders a value as CSV text.
func FormatValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case json.Number:
		return x.String(), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return x.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
