// Package query assembles the SQL text used to read SAP data dictionary
// tables and replicated data from the warehouse. It never executes SQL.
package query

import (
	"fmt"
	"strings"

	"ddbridge/pkg/errors"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// FieldsTable is the replicated DD03L table (table fields).
	FieldsTable = "dd03l"
	// DomainTextsTable is the replicated DD07T table (domain value texts).
	DomainTextsTable = "dd07t"
	// DomainLanguage is the language key used for domain texts.
	DomainLanguage = "E"
)

// upper returns s upper-cased. A Caser keeps state, so each call gets its
// own.
func upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

// Filter is a single equality predicate.
type Filter struct {
	Field string
	Value string
}

// Builder produces SQL for one project.
type Builder struct {
	project string
	dialect Dialect
}

// Option configures a Builder.
type Option func(*Builder)

// WithDialect selects the SQL dialect.
func WithDialect(d Dialect) Option {
	return func(b *Builder) {
		if d != nil {
			b.dialect = d
		}
	}
}

// NewBuilder creates a Builder for project using the BigQuery dialect
// unless another is given.
func NewBuilder(project string, opts ...Option) *Builder {
	b := &Builder{project: project, dialect: BigQuery{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Project returns the configured project.
func (b *Builder) Project() string { return b.project }

// Dialect returns the configured dialect.
func (b *Builder) Dialect() Dialect { return b.dialect }

// Validate fails when dataset or table is empty.
func (b *Builder) Validate(dataset, table string) error {
	if dataset == "" {
		return errors.InvalidArgument("dataset", "must not be empty")
	}
	if table == "" {
		return errors.InvalidArgument("table", "must not be empty")
	}
	return nil
}

// TableRef returns project.dataset.table.
func (b *Builder) TableRef(dataset, table string) (string, error) {
	if err := b.Validate(dataset, table); err != nil {
		return "", err
	}
	return b.project + "." + dataset + "." + table, nil
}

func (b *Builder) from(dataset, table string) (string, error) {
	ref, err := b.TableRef(dataset, table)
	if err != nil {
		return "", err
	}
	return b.dialect.QuoteTable(ref), nil
}

func (b *Builder) eq(f Filter) string {
	return f.Field + " = " + b.dialect.Literal(f.Value)
}

func (b *Builder) selectWhere(dataset, table string, fields []string, filters ...Filter) (string, error) {
	from, err := b.from(dataset, table)
	if err != nil {
		return "", err
	}
	sql := "SELECT " + strings.Join(fields, ", ") + " FROM " + from
	if len(filters) > 0 {
		conds := make([]string, len(filters))
		for i, f := range filters {
			conds[i] = b.eq(f)
		}
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return sql + ";", nil
}

// SelectAll reads every column of a table.
func (b *Builder) SelectAll(dataset, table string) (string, error) {
	return b.selectWhere(dataset, table, []string{"*"})
}

// SelectField reads one column of a table.
func (b *Builder) SelectField(dataset, table, field string) (string, error) {
	return b.selectWhere(dataset, table, []string{field})
}

// SelectFields reads the given columns, optionally filtered by one
// equality predicate. An empty fields list is not rejected.
func (b *Builder) SelectFields(dataset, table string, fields []string, filter *Filter) (string, error) {
	if filter == nil {
		return b.selectWhere(dataset, table, fields)
	}
	return b.selectWhere(dataset, table, fields, *filter)
}

// SelectHeaderFields reads columns filtered by client and link field.
func (b *Builder) SelectHeaderFields(dataset, table string, fields []string, client, link Filter) (string, error) {
	return b.selectWhere(dataset, table, fields, client, link)
}

// SelectFieldsWithDateAndKey reads columns filtered by a date and a key field.
func (b *Builder) SelectFieldsWithDateAndKey(dataset, table string, fields []string, date, key Filter) (string, error) {
	return b.selectWhere(dataset, table, fields, date, key)
}

// Truncate empties a table.
func (b *Builder) Truncate(dataset, table string) (string, error) {
	from, err := b.from(dataset, table)
	if err != nil {
		return "", err
	}
	return "TRUNCATE TABLE " + from + ";", nil
}

// SelectMetadataSchema reads the DD03L rows describing table, in field
// position order. The table name is matched upper-cased.
func (b *Builder) SelectMetadataSchema(dataset, table string) (string, error) {
	if err := b.Validate(dataset, table); err != nil {
		return "", err
	}
	from, err := b.from(dataset, FieldsTable)
	if err != nil {
		return "", err
	}
	intType := b.dialect.IntegerType()
	return fmt.Sprintf(
		"SELECT fieldname, keyflag, checktable, inttype AS saptype, "+
			"CAST(intlen AS %s) AS length, CAST(decimals AS %s) AS decimals, domname "+
			"FROM %s WHERE tabname = %s ORDER BY position;",
		intType, intType, from, b.dialect.Literal(upper(table)),
	), nil
}

// SelectDomainValues reads the value texts of a domain from DD07T.
func (b *Builder) SelectDomainValues(dataset, domain string) (string, error) {
	if domain == "" {
		return "", errors.InvalidArgument("domain", "must not be empty")
	}
	from, err := b.from(dataset, DomainTextsTable)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT ddtext AS %s FROM %s WHERE domname = %s AND ddlanguage = %s ORDER BY valpos;",
		b.dialect.QuoteIdent("values"), from, b.dialect.Literal(upper(domain)), b.dialect.Literal(DomainLanguage),
	), nil
}

// SelectCheckField finds the field of checkTable that uses domain.
func (b *Builder) SelectCheckField(dataset, checkTable, domain string) (string, error) {
	if checkTable == "" {
		return "", errors.InvalidArgument("checktable", "must not be empty")
	}
	if domain == "" {
		return "", errors.InvalidArgument("domain", "must not be empty")
	}
	from, err := b.from(dataset, FieldsTable)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT fieldname FROM %s WHERE tabname = %s AND domname = %s;",
		from, b.dialect.Literal(upper(checkTable)), b.dialect.Literal(upper(domain)),
	), nil
}
