// Package warehouse defines the capabilities the core needs from an
// analytical warehouse. Backends live in internal/bigquery and
// internal/snowflake.
package warehouse

import (
	"context"
	"fmt"

	"ddbridge/internal/frame"
	"ddbridge/internal/schema"
	"ddbridge/pkg/errors"
)

// Record is one result row keyed by column name.
type Record = frame.Record

// TableRef identifies a table or view.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// NewTableRef builds and validates a reference.
func NewTableRef(project, dataset, table string) (TableRef, error) {
	ref := TableRef{Project: project, Dataset: dataset, Table: table}
	return ref, ref.Validate()
}

// Validate fails when dataset or table is empty.
func (r TableRef) Validate() error {
	if r.Dataset == "" {
		return errors.InvalidArgument("dataset", "must not be empty")
	}
	if r.Table == "" {
		return errors.InvalidArgument("table", "must not be empty")
	}
	return nil
}

// String returns project.dataset.table.
func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.Project, r.Dataset, r.Table)
}

// TableInfo is the subset of table metadata the core uses.
type TableInfo struct {
	Ref      TableRef
	NumRows  uint64
	NumBytes int64
	Schema   []schema.ColumnSchema
	IsView   bool
}

// WriteDisposition is the mode a load job writes into an existing table.
type WriteDisposition string

const (
	WriteAppend   WriteDisposition = "WRITE_APPEND"
	WriteTruncate WriteDisposition = "WRITE_TRUNCATE"
)

// SourceFormat is the encoding of loaded data.
type SourceFormat string

const (
	FormatCSV    SourceFormat = "CSV"
	FormatNDJSON SourceFormat = "NEWLINE_DELIMITED_JSON"
)

// LoadOptions configures a load job.
type LoadOptions struct {
	Disposition WriteDisposition
	Schema      []schema.ColumnSchema
	Format      SourceFormat
}

// RowError describes why one row of an insert was rejected. Row is the
// index within the inserted batch, or -1 when the whole batch failed.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) String() string {
	if e.Row < 0 {
		return e.Message
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Querier executes SQL and materializes the result.
//
// Implementations report a rejected query text as an
// errors.ErrCodeMalformedQuery AppError.
type Querier interface {
	Query(ctx context.Context, sql string) ([]Record, error)
}

// Catalog inspects and creates tables and views.
//
// GetTable reports a missing table as errors.ErrCodeNotFound.
type Catalog interface {
	TableExists(ctx context.Context, ref TableRef) (bool, error)
	GetTable(ctx context.Context, ref TableRef) (*TableInfo, error)
	CreateTable(ctx context.Context, ref TableRef, columns []schema.ColumnSchema) error
	CreateView(ctx context.Context, ref TableRef, sql string) error
}

// Loader moves rows into tables. Load calls block until the job finishes.
type Loader interface {
	LoadFrame(ctx context.Context, f *frame.Frame, ref TableRef, opts LoadOptions) error
	LoadURI(ctx context.Context, uri string, ref TableRef, opts LoadOptions) error
	InsertRows(ctx context.Context, ref TableRef, rows []Record) ([]RowError, error)
}

// Warehouse is the full capability set a backend provides.
type Warehouse interface {
	Querier
	Catalog
	Loader
	Close() error
}
