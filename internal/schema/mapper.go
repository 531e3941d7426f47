package schema

import (
	"fmt"
	"strings"

	"ddbridge/pkg/errors"
)

// keyFlagSet is the DD03L KEYFLAG value for key fields.
const keyFlagSet = "X"

// sapTypeMap translates DD03L INTTYPE codes to warehouse column types.
var sapTypeMap = map[string]ColumnType{
	"b": TypeInt1,
	"s": TypeInt2,
	"I": TypeInt4,
	"8": TypeInt8,
	"F": TypeFloat,
	"P": TypeNumeric,
	"a": TypeDecimal,
	"e": TypeNumeric,
	"N": TypeString,
	"X": TypeString,
	"y": TypeString,
	"C": TypeString,
	"g": TypeString,
	"?": TypeString,
	"&": TypeString,
	"D": TypeDate,
	"T": TypeTime,
}

// LookupType returns the column type for a foreign type code and whether
// the code is known.
func LookupType(sapType string) (ColumnType, bool) {
	t, ok := sapTypeMap[sapType]
	return t, ok
}

// Map converts data dictionary rows into warehouse columns, preserving
// order. Unknown type codes produce TypeUnmapped; use Validate or Unmapped
// to detect them.
func Map(fields []FieldSpec) []ColumnSchema {
	columns := make([]ColumnSchema, 0, len(fields))
	for _, f := range fields {
		columns = append(columns, MapField(f))
	}
	return columns
}

// MapField converts a single data dictionary row.
func MapField(f FieldSpec) ColumnSchema {
	mode := ModeNullable
	if f.KeyFlag == keyFlagSet {
		mode = ModeRequired
	}
	t, _ := LookupType(f.SAPType)
	return ColumnSchema{
		Name: strings.ToLower(f.FieldName),
		Type: t,
		Mode: mode,
	}
}

// Unmapped returns the columns whose type could not be resolved.
func Unmapped(columns []ColumnSchema) []ColumnSchema {
	var out []ColumnSchema
	for _, c := range columns {
		if c.Type == TypeUnmapped {
			out = append(out, c)
		}
	}
	return out
}

// Validate fails with an UnmappedType error naming every unresolved column.
func Validate(columns []ColumnSchema) error {
	bad := Unmapped(columns)
	if len(bad) == 0 {
		return nil
	}
	names := make([]string, len(bad))
	for i, c := range bad {
		names[i] = c.Name
	}
	return errors.New(errors.ErrCodeUnmappedType,
		fmt.Sprintf("%d column(s) have no warehouse type: %s", len(bad), strings.Join(names, ", "))).
		WithContext("columns", names).
		WithSuggestions("Extend the type mapping or exclude the columns before creating the table")
}

// HasJSON reports whether any column needs a staged-file load.
func HasJSON(columns []ColumnSchema) bool {
	for _, c := range columns {
		if c.Type == TypeJSON {
			return true
		}
	}
	return false
}

// HasNested reports whether any column is a RECORD or REPEATED, which a
// CSV load cannot fill.
func HasNested(columns []ColumnSchema) bool {
	for _, c := range columns {
		if c.Type == TypeRecord || c.Mode == ModeRepeated {
			return true
		}
	}
	return false
}

// Names returns the column names in order.
func Names(columns []ColumnSchema) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}
