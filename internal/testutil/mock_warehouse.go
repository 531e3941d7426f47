package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"ddbridge/internal/frame"
	"ddbridge/internal/schema"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

// Call records one warehouse operation.
type Call struct {
	Method string
	Ref    warehouse.TableRef
	SQL    string
	URI    string
	Opts   warehouse.LoadOptions
	Rows   int
}

// MockTable is the in-memory state of one table or view.
type MockTable struct {
	Schema  []schema.ColumnSchema
	Rows    []warehouse.Record
	IsView  bool
	ViewSQL string
}

// MockWarehouse is an in-memory warehouse.Warehouse that records every call.
type MockWarehouse struct {
	mu sync.Mutex

	Tables map[string]*MockTable

	// Query behavior, keyed by exact SQL text
	QueryResults map[string][]warehouse.Record
	QueryErrors  map[string]error

	// Operation failures
	GetTableError    error
	CreateTableError error
	CreateViewError  error
	LoadError        error
	InsertFunc       func(ref warehouse.TableRef, rows []warehouse.Record) ([]warehouse.RowError, error)

	Calls  []Call
	Closed bool
}

// NewMockWarehouse creates an empty mock warehouse
func NewMockWarehouse() *MockWarehouse {
	return &MockWarehouse{
		Tables:       make(map[string]*MockTable),
		QueryResults: make(map[string][]warehouse.Record),
		QueryErrors:  make(map[string]error),
	}
}

func key(ref warehouse.TableRef) string {
	return ref.Dataset + "." + ref.Table
}

// AddTable registers an existing table.
func (m *MockWarehouse) AddTable(dataset, table string, cols []schema.ColumnSchema, rows ...warehouse.Record) *MockTable {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &MockTable{Schema: cols, Rows: rows}
	m.Tables[dataset+"."+table] = t
	return t
}

// Table returns the table state or nil.
func (m *MockWarehouse) Table(dataset, table string) *MockTable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tables[dataset+"."+table]
}

// SetQueryResult sets the rows returned for a specific query
func (m *MockWarehouse) SetQueryResult(sql string, rows ...warehouse.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryResults[sql] = rows
}

// SetQueryError sets an error to be returned for a specific query
func (m *MockWarehouse) SetQueryError(sql string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryErrors[sql] = err
}

// Methods returns the recorded method names in call order.
func (m *MockWarehouse) Methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Method
	}
	return out
}

// CallsTo returns the recorded calls of one method.
func (m *MockWarehouse) CallsTo(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Call
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockWarehouse) record(c Call) {
	m.Calls = append(m.Calls, c)
}

// Query returns the configured rows for sql. A TRUNCATE TABLE statement
// naming a known table empties it.
func (m *MockWarehouse) Query(ctx context.Context, sql string) ([]warehouse.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: "Query", SQL: sql})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.QueryErrors[sql]; ok {
		return nil, err
	}
	if rows, ok := m.QueryResults[sql]; ok {
		return rows, nil
	}
	if strings.HasPrefix(strings.ToUpper(sql), "TRUNCATE TABLE") {
		for k, t := range m.Tables {
			if strings.Contains(sql, "."+k) {
				t.Rows = nil
			}
		}
	}
	return nil, nil
}

// TableExists reports whether the table is registered.
func (m *MockWarehouse) TableExists(ctx context.Context, ref warehouse.TableRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: "TableExists", Ref: ref})
	if m.GetTableError != nil {
		return false, m.GetTableError
	}
	_, ok := m.Tables[key(ref)]
	return ok, nil
}

// GetTable returns NotFound for unknown tables.
func (m *MockWarehouse) GetTable(ctx context.Context, ref warehouse.TableRef) (*warehouse.TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: "GetTable", Ref: ref})
	if m.GetTableError != nil {
		return nil, m.GetTableError
	}
	t, ok := m.Tables[key(ref)]
	if !ok {
		return nil, errors.NotFound(ref.String(), fmt.Errorf("no such table"))
	}
	return &warehouse.TableInfo{
		Ref:     ref,
		NumRows: uint64(len(t.Rows)),
		Schema:  t.Schema,
		IsView:  t.IsView,
	}, nil
}

// CreateTable registers a new empty table.
func (m *MockWarehouse) CreateTable(ctx context.Context, ref warehouse.TableRef, cols []schema.ColumnSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: "CreateTable", Ref: ref})
	if m.CreateTableError != nil {
		return m.CreateTableError
	}
	if _, ok := m.Tables[key(ref)]; ok {
		return errors.New(errors.ErrCodeAlreadyExists, ref.String()+" already exists")
	}
	m.Tables[key(ref)] = &MockTable{Schema: cols}
	return nil
}

// CreateView registers a view.
func (m *MockWarehouse) CreateView(ctx context.Context, ref warehouse.TableRef, sql string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: "CreateView", Ref: ref, SQL: sql})
	if m.CreateViewError != nil {
		return m.CreateViewError
	}
	if _, ok := m.Tables[key(ref)]; ok {
		return errors.New(errors.ErrCodeAlreadyExists, ref.String()+" already exists")
	}
	m.Tables[key(ref)] = &MockTable{IsView: true, ViewSQL: sql}
	return nil
}

// LoadFrame appends (or replaces, for WRITE_TRUNCATE) the table rows.
func (m *MockWarehouse) LoadFrame(ctx context.Context, f *frame.Frame, ref warehouse.TableRef, opts warehouse.LoadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: "LoadFrame", Ref: ref, Opts: opts, Rows: f.Len()})
	if m.LoadError != nil {
		return m.LoadError
	}
	m.load(ref, opts, f.Records())
	return nil
}

// LoadURI loads file:// URIs as NDJSON. Other schemes are recorded only.
func (m *MockWarehouse) LoadURI(ctx context.Context, uri string, ref warehouse.TableRef, opts warehouse.LoadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: "LoadURI", Ref: ref, URI: uri, Opts: opts})
	if m.LoadError != nil {
		return m.LoadError
	}
	if !strings.HasPrefix(uri, "file://") {
		return nil
	}

	fh, err := os.Open(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		return err
	}
	defer fh.Close()

	f, err := frame.ReadNDJSON(fh, nil)
	if err != nil {
		return err
	}
	m.load(ref, opts, f.Records())
	return nil
}

func (m *MockWarehouse) load(ref warehouse.TableRef, opts warehouse.LoadOptions, rows []warehouse.Record) {
	t, ok := m.Tables[key(ref)]
	if !ok {
		t = &MockTable{Schema: opts.Schema}
		m.Tables[key(ref)] = t
	}
	if opts.Disposition == warehouse.WriteTruncate {
		t.Rows = nil
	}
	t.Rows = append(t.Rows, rows...)
}

// InsertRows streams rows into the table, or defers to InsertFunc.
func (m *MockWarehouse) InsertRows(ctx context.Context, ref warehouse.TableRef, rows []warehouse.Record) ([]warehouse.RowError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: "InsertRows", Ref: ref, Rows: len(rows)})
	if m.InsertFunc != nil {
		rowErrs, err := m.InsertFunc(ref, rows)
		if err != nil || len(rowErrs) > 0 {
			return rowErrs, err
		}
	}
	t, ok := m.Tables[key(ref)]
	if !ok {
		return nil, errors.NotFound(ref.String(), fmt.Errorf("no such table"))
	}
	t.Rows = append(t.Rows, rows...)
	return nil, nil
}

// Close marks the warehouse closed.
func (m *MockWarehouse) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

var _ warehouse.Warehouse = (*MockWarehouse)(nil)
