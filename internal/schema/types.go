package schema

// ColumnType is a warehouse column type. The integer widths INT1..INT8 and
// the NUMERIC/DECIMAL split are kept as produced by the data dictionary so
// backends can choose their closest physical type.
type ColumnType string

const (
	// TypeUnmapped marks a column whose foreign type code has no mapping.
	TypeUnmapped ColumnType = ""

	TypeInt1       ColumnType = "INT1"
	TypeInt2       ColumnType = "INT2"
	TypeInt4       ColumnType = "INT4"
	TypeInt8       ColumnType = "INT8"
	TypeInteger    ColumnType = "INTEGER"
	TypeFloat      ColumnType = "FLOAT"
	TypeNumeric    ColumnType = "NUMERIC"
	TypeDecimal    ColumnType = "DECIMAL"
	TypeBigNumeric ColumnType = "BIGNUMERIC"
	TypeString     ColumnType = "STRING"
	TypeBytes      ColumnType = "BYTES"
	TypeBoolean    ColumnType = "BOOLEAN"
	TypeDate       ColumnType = "DATE"
	TypeTime       ColumnType = "TIME"
	TypeDateTime   ColumnType = "DATETIME"
	TypeTimestamp  ColumnType = "TIMESTAMP"
	TypeJSON       ColumnType = "JSON"
	TypeRecord     ColumnType = "RECORD"
)

// IsInteger reports whether t is one of the integer widths.
func (t ColumnType) IsInteger() bool {
	switch t {
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8, TypeInteger:
		return true
	}
	return false
}

// Mode is the nullability of a column.
type Mode string

const (
	ModeRequired Mode = "REQUIRED"
	ModeNullable Mode = "NULLABLE"
	// ModeRepeated only appears on schemas read back from the warehouse.
	ModeRepeated Mode = "REPEATED"
)

// FieldSpec is one row of the DD03L data dictionary as returned by the
// metadata query.
type FieldSpec struct {
	FieldName  string `json:"fieldname"`
	KeyFlag    string `json:"keyflag"`
	CheckTable string `json:"checktable"`
	SAPType    string `json:"saptype"`
	Length     int64  `json:"length"`
	Decimals   int64  `json:"decimals"`
	DomName    string `json:"domname"`
}

// ColumnSchema describes one warehouse column. The JSON form matches the
// warehouse's schema file format so schema files can be passed to uploads.
type ColumnSchema struct {
	Name   string         `json:"name" yaml:"name"`
	Type   ColumnType     `json:"type" yaml:"type"`
	Mode   Mode           `json:"mode,omitempty" yaml:"mode,omitempty"`
	Fields []ColumnSchema `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// IsRequired reports whether the column rejects NULLs.
func (c ColumnSchema) IsRequired() bool {
	return c.Mode == ModeRequired
}
