package query

import "strings"

// Dialect controls the quoting rules of the generated SQL.
type Dialect interface {
	Name() string
	// QuoteTable quotes a fully-qualified project.dataset.table reference.
	QuoteTable(ref string) string
	// QuoteIdent quotes a column alias that may collide with a keyword.
	QuoteIdent(name string) string
	// Literal renders a string literal.
	Literal(value string) string
	// IntegerType is the cast target for integer metadata columns.
	IntegerType() string
}

// BigQuery renders backtick-quoted references and double-quoted literals.
type BigQuery struct{}

func (BigQuery) Name() string { return "bigquery" }

func (BigQuery) QuoteTable(ref string) string { return "`" + ref + "`" }

func (BigQuery) QuoteIdent(name string) string { return name }

func (BigQuery) Literal(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(value) + `"`
}

func (BigQuery) IntegerType() string { return "INT64" }

// Snowflake renders unquoted database.schema.table references and
// single-quoted literals.
type Snowflake struct{}

func (Snowflake) Name() string { return "snowflake" }

func (Snowflake) QuoteTable(ref string) string { return ref }

// QuoteIdent double-quotes name, which also keeps it lower case.
func (Snowflake) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Snowflake) Literal(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func (Snowflake) IntegerType() string { return "INTEGER" }

// DialectFor returns the dialect registered under name, defaulting to BigQuery.
func DialectFor(name string) Dialect {
	switch strings.ToLower(name) {
	case "snowflake":
		return Snowflake{}
	default:
		return BigQuery{}
	}
}
