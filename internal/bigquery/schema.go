package bigquery

import (
	"fmt"

	bq "cloud.google.com/go/bigquery"

	"ddbridge/internal/schema"
	"ddbridge/pkg/errors"
)

var fieldTypes = map[schema.ColumnType]bq.FieldType{
	schema.TypeInt1:       bq.IntegerFieldType,
	schema.TypeInt2:       bq.IntegerFieldType,
	schema.TypeInt4:       bq.IntegerFieldType,
	schema.TypeInt8:       bq.IntegerFieldType,
	schema.TypeInteger:    bq.IntegerFieldType,
	schema.TypeFloat:      bq.FloatFieldType,
	schema.TypeNumeric:    bq.NumericFieldType,
	schema.TypeDecimal:    bq.NumericFieldType,
	schema.TypeBigNumeric: bq.BigNumericFieldType,
	schema.TypeString:     bq.StringFieldType,
	schema.TypeBytes:      bq.BytesFieldType,
	schema.TypeBoolean:    bq.BooleanFieldType,
	schema.TypeDate:       bq.DateFieldType,
	schema.TypeTime:       bq.TimeFieldType,
	schema.TypeDateTime:   bq.DateTimeFieldType,
	schema.TypeTimestamp:  bq.TimestampFieldType,
	schema.TypeJSON:       bq.JSONFieldType,
	schema.TypeRecord:     bq.RecordFieldType,
}

var columnTypes = map[bq.FieldType]schema.ColumnType{
	bq.IntegerFieldType:    schema.TypeInteger,
	bq.FloatFieldType:      schema.TypeFloat,
	bq.NumericFieldType:    schema.TypeNumeric,
	bq.BigNumericFieldType: schema.TypeBigNumeric,
	bq.StringFieldType:     schema.TypeString,
	bq.BytesFieldType:      schema.TypeBytes,
	bq.BooleanFieldType:    schema.TypeBoolean,
	bq.DateFieldType:       schema.TypeDate,
	bq.TimeFieldType:       schema.TypeTime,
	bq.DateTimeFieldType:   schema.TypeDateTime,
	bq.TimestampFieldType:  schema.TypeTimestamp,
	bq.JSONFieldType:       schema.TypeJSON,
	bq.RecordFieldType:     schema.TypeRecord,
}

// toSchema converts columns to a BigQuery schema. A column without a
// BigQuery type is an UnmappedType error.
func toSchema(columns []schema.ColumnSchema) (bq.Schema, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	if err := schema.Validate(columns); err != nil {
		return nil, err
	}

	out := make(bq.Schema, 0, len(columns))
	for _, c := range columns {
		ft, ok := fieldTypes[c.Type]
		if !ok {
			return nil, errors.New(errors.ErrCodeUnmappedType,
				fmt.Sprintf("column %s: type %s has no BigQuery equivalent", c.Name, c.Type))
		}
		nested, err := toSchema(c.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, &bq.FieldSchema{
			Name:     c.Name,
			Type:     ft,
			Required: c.Mode == schema.ModeRequired,
			Repeated: c.Mode == schema.ModeRepeated,
			Schema:   nested,
		})
	}
	return out, nil
}

func fromSchema(s bq.Schema) []schema.ColumnSchema {
	out := make([]schema.ColumnSchema, 0, len(s))
	for _, f := range s {
		mode := schema.ModeNullable
		switch {
		case f.Required:
			mode = schema.ModeRequired
		case f.Repeated:
			mode = schema.ModeRepeated
		}
		col := schema.ColumnSchema{Name: f.Name, Type: columnTypes[f.Type], Mode: mode}
		if len(f.Schema) > 0 {
			col.Fields = fromSchema(f.Schema)
		}
		out = append(out, col)
	}
	return out
}
