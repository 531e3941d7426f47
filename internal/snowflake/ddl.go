package snowflake

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"ddbridge/internal/schema"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

// maxInsertRows bounds the rows bound into one INSERT statement.
const maxInsertRows = 1000

var sqlTypes = map[schema.ColumnType]string{
	schema.TypeInt1:       "NUMBER(3,0)",
	schema.TypeInt2:       "NUMBER(5,0)",
	schema.TypeInt4:       "NUMBER(10,0)",
	schema.TypeInt8:       "NUMBER(19,0)",
	schema.TypeInteger:    "NUMBER(38,0)",
	schema.TypeFloat:      "FLOAT",
	schema.TypeNumeric:    "NUMBER(38,9)",
	schema.TypeDecimal:    "NUMBER(38,9)",
	schema.TypeBigNumeric: "NUMBER(38,18)",
	schema.TypeString:     "VARCHAR",
	schema.TypeBytes:      "BINARY",
	schema.TypeBoolean:    "BOOLEAN",
	schema.TypeDate:       "DATE",
	schema.TypeTime:       "TIME",
	schema.TypeDateTime:   "TIMESTAMP_NTZ",
	schema.TypeTimestamp:  "TIMESTAMP_TZ",
	schema.TypeJSON:       "VARIANT",
	schema.TypeRecord:     "OBJECT",
}

// createTableSQL renders CREATE TABLE for columns. Identifiers are used
// verbatim.
func createTableSQL(name string, columns []schema.ColumnSchema) (string, error) {
	if err := schema.Validate(columns); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", errors.New(errors.ErrCodeEmptySchema, "cannot create a table without columns").
			WithContext("table", name)
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		t, ok := sqlTypes[c.Type]
		if !ok {
			return "", errors.New(errors.ErrCodeUnmappedType, fmt.Sprintf("column %s has no Snowflake type for %s", c.Name, c.Type)).
				WithContext("column", c.Name)
		}
		if c.Mode == schema.ModeRepeated {
			t = "ARRAY"
		}
		def := c.Name + " " + t
		if c.IsRequired() {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", ")), nil
}

// fromColumn maps an INFORMATION_SCHEMA.COLUMNS row back to a column.
func fromColumn(name, dataType, nullable string, scale sql.NullInt64) schema.ColumnSchema {
	c := schema.ColumnSchema{Name: strings.ToLower(name), Mode: schema.ModeNullable}
	if strings.EqualFold(nullable, "NO") {
		c.Mode = schema.ModeRequired
	}

	switch strings.ToUpper(dataType) {
	case "NUMBER", "DECIMAL", "NUMERIC":
		if scale.Valid && scale.Int64 == 0 {
			c.Type = schema.TypeInteger
		} else {
			c.Type = schema.TypeNumeric
		}
	case "FLOAT", "DOUBLE", "REAL":
		c.Type = schema.TypeFloat
	case "TEXT", "VARCHAR", "STRING", "CHAR":
		c.Type = schema.TypeString
	case "BINARY", "VARBINARY":
		c.Type = schema.TypeBytes
	case "BOOLEAN":
		c.Type = schema.TypeBoolean
	case "DATE":
		c.Type = schema.TypeDate
	case "TIME":
		c.Type = schema.TypeTime
	case "TIMESTAMP_NTZ":
		c.Type = schema.TypeDateTime
	case "TIMESTAMP_LTZ", "TIMESTAMP_TZ":
		c.Type = schema.TypeTimestamp
	case "VARIANT", "OBJECT":
		c.Type = schema.TypeJSON
	case "ARRAY":
		c.Type = schema.TypeJSON
		c.Mode = schema.ModeRepeated
	default:
		c.Type = schema.TypeUnmapped
	}
	return c
}

func jsonColumns(columns []schema.ColumnSchema) map[string]bool {
	out := make(map[string]bool)
	for _, c := range columns {
		if c.Type == schema.TypeJSON || c.Type == schema.TypeRecord || c.Mode == schema.ModeRepeated {
			out[c.Name] = true
		}
	}
	return out
}

// isNested reports whether v must be bound as JSON text.
func isNested(v any) bool {
	switch v.(type) {
	case nil, []byte, string:
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

func bindValue(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		return x.String(), nil
	}
	if isNested(v) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

// insertSQL renders a multi-row INSERT for n rows. Nested columns are
// bound as JSON text and parsed server-side, which needs the
// INSERT ... SELECT ... FROM VALUES form.
func insertSQL(name string, columns []string, nested map[string]bool, n int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	rows := strings.TrimSuffix(strings.Repeat(row+", ", n), ", ")
	cols := strings.Join(columns, ", ")

	var parse bool
	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = fmt.Sprintf("column%d", i+1)
		if nested[c] {
			exprs[i] = "PARSE_JSON(" + exprs[i] + ")"
			parse = true
		}
	}
	if !parse {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", name, cols, rows)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM VALUES %s", name, cols, strings.Join(exprs, ", "), rows)
}

// insert writes rows in batches of maxInsertRows inside tx.
func (w *Warehouse) insert(ctx context.Context, tx *sql.Tx, ref warehouse.TableRef, columns []string, rows [][]any, nested map[string]bool) error {
	if len(columns) == 0 || len(rows) == 0 {
		return nil
	}
	name := w.name(ref)

	for start := 0; start < len(rows); start += maxInsertRows {
		end := start + maxInsertRows
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		args := make([]any, 0, len(batch)*len(columns))
		for i, row := range batch {
			if len(row) != len(columns) {
				return errors.InvalidArgument("row", fmt.Sprintf("row %d has %d values, expected %d", start+i, len(row), len(columns)))
			}
			for _, v := range row {
				b, err := bindValue(v)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeInvalidArgument, fmt.Sprintf("cannot encode row %d", start+i))
				}
				args = append(args, b)
			}
		}

		if err := execTx(ctx, tx, insertSQL(name, columns, nested, len(batch)), args...); err != nil {
			return err
		}
		w.log.Debugf("inserted %d rows into %s", len(batch), name)
	}
	return nil
}
