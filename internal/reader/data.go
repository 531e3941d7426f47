package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"ddbridge/internal/query"
	"ddbridge/internal/schema"
	"ddbridge/internal/warehouse"
)

// ReadField returns every value of one column.
func (r *Reader) ReadField(ctx context.Context, dataset, table, field string) ([]any, error) {
	sql, err := r.qb.SelectField(dataset, table, field)
	if err != nil {
		return nil, err
	}
	rows, err := r.read(ctx, sql)
	if err != nil {
		return nil, err
	}
	return flatten(rows, []string{field}), nil
}

// ReadColumns returns the selected columns, optionally filtered on one
// equality predicate.
func (r *Reader) ReadColumns(ctx context.Context, dataset, table string, fields []string, filter *query.Filter) ([]warehouse.Record, error) {
	sql, err := r.qb.SelectFields(dataset, table, fields, filter)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, sql)
}

// ReadColumnsWithRepeated is ReadColumns with nested and repeated values
// converted to plain []any and map[string]any at every depth.
func (r *Reader) ReadColumnsWithRepeated(ctx context.Context, dataset, table string, fields []string, filter *query.Filter) ([]warehouse.Record, error) {
	rows, err := r.ReadColumns(ctx, dataset, table, fields, filter)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		rows[i] = normalizeRecord(row)
	}
	return rows, nil
}

// ReadHeaderColumns filters on a client and a link field.
func (r *Reader) ReadHeaderColumns(ctx context.Context, dataset, table string, fields []string, client, link query.Filter) ([]warehouse.Record, error) {
	sql, err := r.qb.SelectHeaderFields(dataset, table, fields, client, link)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, sql)
}

// ReadColumnsByDateAndKey filters on a date and a key field.
func (r *Reader) ReadColumnsByDateAndKey(ctx context.Context, dataset, table string, fields []string, date, key query.Filter) ([]warehouse.Record, error) {
	sql, err := r.qb.SelectFieldsWithDateAndKey(dataset, table, fields, date, key)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, sql)
}

func (r *Reader) read(ctx context.Context, sql string) ([]warehouse.Record, error) {
	rows, err := r.query(ctx, sql)
	if err != nil {
		if r.soft(err, sql) {
			return []warehouse.Record{}, nil
		}
		return nil, err
	}
	if rows == nil {
		rows = []warehouse.Record{}
	}
	return rows, nil
}

// flatten lists the values of columns row by row.
func flatten(rows []warehouse.Record, columns []string) []any {
	out := make([]any, 0, len(rows)*len(columns))
	for _, row := range rows {
		for _, c := range columns {
			out = append(out, row[c])
		}
	}
	return out
}

func normalizeRecord(rec warehouse.Record) warehouse.Record {
	out := make(warehouse.Record, len(rec))
	for k, v := range rec {
		out[k] = normalize(v)
	}
	return out
}

// normalize rewrites any slice or string-keyed map, whatever its element
// type, into []any or map[string]any, recursively. Byte slices are values.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, []byte, string:
		return v
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}

func fieldSpecFromRecord(rec warehouse.Record) schema.FieldSpec {
	return schema.FieldSpec{
		FieldName:  asString(rec["fieldname"]),
		KeyFlag:    asString(rec["keyflag"]),
		CheckTable: asString(rec["checktable"]),
		SAPType:    asString(rec["saptype"]),
		Length:     asInt64(rec["length"]),
		Decimals:   asInt64(rec["decimals"]),
		DomName:    asString(rec["domname"]),
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		return int64(x)
	case json.Number:
		n, _ := x.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(x), 10, 64)
		return n
	}
	return 0
}
