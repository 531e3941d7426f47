package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	sf "github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddbridge/internal/frame"
	"ddbridge/internal/schema"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

var vbak = warehouse.TableRef{Project: "ERP", Dataset: "sales", Table: "vbak"}

func newMockWarehouse(t *testing.T) (*Warehouse, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	w, err := NewWithDB(context.Background(), db, Config{
		Account:            "test123.us-east-1",
		Database:           "ERP",
		StorageIntegration: "LAKE_INT",
		Timeout:            5 * time.Second,
	}, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		_ = w.Close()
	})
	return w, mock
}

func TestTimeouts(t *testing.T) {
	w := &Warehouse{}
	assert.Equal(t, 30*time.Second, w.statementTimeout())
	assert.Equal(t, 10*time.Minute, w.loadTimeout())

	w.config = Config{Timeout: 5 * time.Second, LoadTimeout: time.Hour}
	assert.Equal(t, 5*time.Second, w.statementTimeout())
	assert.Equal(t, time.Hour, w.loadTimeout())
}

func TestLoadFrame_OutlivesStatementTimeout(t *testing.T) {
	w, mock := newMockWarehouse(t)
	w.config.Timeout = time.Millisecond
	w.config.LoadTimeout = time.Minute

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ERP.sales.vbak").WillDelayFor(20 * time.Millisecond).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	f := frame.New("vbeln")
	require.NoError(t, f.Append("0001"))
	require.NoError(t, w.LoadFrame(context.Background(), f, vbak, warehouse.LoadOptions{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		Account:   "test123.us-east-1",
		Username:  "testuser",
		Password:  "testpass",
		Warehouse: "TEST_WH",
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
		errorMsg  string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing account", mutate: func(c *Config) { c.Account = "" }, wantError: true, errorMsg: "account is required"},
		{name: "missing username", mutate: func(c *Config) { c.Username = "" }, wantError: true, errorMsg: "username is required"},
		{name: "missing password", mutate: func(c *Config) { c.Password = "" }, wantError: true, errorMsg: "password is required"},
		{name: "missing warehouse", mutate: func(c *Config) { c.Warehouse = "" }, wantError: true, errorMsg: "warehouse is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantError {
				assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuery_LowercasesColumns(t *testing.T) {
	w, mock := newMockWarehouse(t)

	rows := sqlmock.NewRows([]string{"FIELDNAME", "LENGTH"}).
		AddRow([]byte("MANDT"), int64(3)).
		AddRow("VBELN", int64(10))
	mock.ExpectQuery("SELECT fieldname").WillReturnRows(rows)

	got, err := w.Query(context.Background(), "SELECT fieldname, length FROM ERP.meta.dd03l")
	require.NoError(t, err)
	assert.Equal(t, []warehouse.Record{
		{"fieldname": "MANDT", "length": int64(3)},
		{"fieldname": "VBELN", "length": int64(10)},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_SyntaxErrorIsMalformed(t *testing.T) {
	w, mock := newMockWarehouse(t)

	mock.ExpectQuery("SELEC").WillReturnError(&sf.SnowflakeError{
		Number:   errNumSyntax,
		SQLState: "42000",
		Message:  "SQL compilation error: syntax error line 1 at position 0 unexpected 'SELEC'.",
	})

	_, err := w.Query(context.Background(), "SELEC 1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedQuery))
}

func expectTableLookup(mock sqlmock.Sqlmock, tableType string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT table_type, row_count, bytes FROM ERP.information_schema.tables")).
		WithArgs("SALES", "VBAK").
		WillReturnRows(sqlmock.NewRows([]string{"table_type", "row_count", "bytes"}).AddRow(tableType, int64(3), int64(2048)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT column_name, data_type, is_nullable, numeric_scale FROM ERP.information_schema.columns")).
		WithArgs("SALES", "VBAK").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "numeric_scale"}).
			AddRow("VBELN", "TEXT", "NO", nil).
			AddRow("POSNR", "NUMBER", "YES", int64(0)).
			AddRow("NETWR", "NUMBER", "YES", int64(2)).
			AddRow("PAYLOAD", "VARIANT", "YES", nil))
}

func TestGetTable(t *testing.T) {
	w, mock := newMockWarehouse(t)
	expectTableLookup(mock, "BASE TABLE")

	info, err := w.GetTable(context.Background(), vbak)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.NumRows)
	assert.Equal(t, int64(2048), info.NumBytes)
	assert.False(t, info.IsView)
	assert.Equal(t, []schema.ColumnSchema{
		{Name: "vbeln", Type: schema.TypeString, Mode: schema.ModeRequired},
		{Name: "posnr", Type: schema.TypeInteger, Mode: schema.ModeNullable},
		{Name: "netwr", Type: schema.TypeNumeric, Mode: schema.ModeNullable},
		{Name: "payload", Type: schema.TypeJSON, Mode: schema.ModeNullable},
	}, info.Schema)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTable_View(t *testing.T) {
	w, mock := newMockWarehouse(t)
	expectTableLookup(mock, "VIEW")

	info, err := w.GetTable(context.Background(), vbak)
	require.NoError(t, err)
	assert.True(t, info.IsView)
}

func TestTableExists_Missing(t *testing.T) {
	w, mock := newMockWarehouse(t)
	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_type", "row_count", "bytes"}))

	ok, err := w.TableExists(context.Background(), vbak)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTableExists_DriverFailurePropagates(t *testing.T) {
	w, mock := newMockWarehouse(t)
	mock.ExpectQuery("information_schema.tables").WillReturnError(fmt.Errorf("connection reset by peer"))

	_, err := w.TableExists(context.Background(), vbak)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSQLExecution))
}

func TestCreateTable(t *testing.T) {
	w, mock := newMockWarehouse(t)
	mock.ExpectExec(regexp.QuoteMeta(
		"CREATE TABLE ERP.sales.vbak (mandt VARCHAR NOT NULL, posnr NUMBER(5,0), netwr NUMBER(38,9), payload VARIANT)",
	)).WillReturnResult(sqlmock.NewResult(0, 0))

	err := w.CreateTable(context.Background(), vbak, []schema.ColumnSchema{
		{Name: "mandt", Type: schema.TypeString, Mode: schema.ModeRequired},
		{Name: "posnr", Type: schema.TypeInt2, Mode: schema.ModeNullable},
		{Name: "netwr", Type: schema.TypeDecimal},
		{Name: "payload", Type: schema.TypeJSON},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTable_Errors(t *testing.T) {
	w, mock := newMockWarehouse(t)
	ctx := context.Background()

	mock.ExpectExec("CREATE TABLE").WillReturnError(&sf.SnowflakeError{
		Number:   errNumAlreadyExists,
		SQLState: "42710",
		Message:  "SQL compilation error: Object 'VBAK' already exists.",
	})
	err := w.CreateTable(ctx, vbak, []schema.ColumnSchema{{Name: "mandt", Type: schema.TypeString}})
	assert.True(t, errors.HasCode(err, errors.ErrCodeAlreadyExists))

	err = w.CreateTable(ctx, vbak, []schema.ColumnSchema{{Name: "blob", Type: schema.TypeUnmapped}})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnmappedType))

	err = w.CreateTable(ctx, vbak, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEmptySchema))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateView(t *testing.T) {
	w, mock := newMockWarehouse(t)
	ref := warehouse.TableRef{Project: "ERP", Dataset: "sales", Table: "v_orders"}

	mock.ExpectExec(regexp.QuoteMeta("CREATE VIEW ERP.sales.v_orders AS SELECT vbeln FROM ERP.sales.vbak")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, w.CreateView(context.Background(), ref, "SELECT vbeln FROM ERP.sales.vbak;"))
	assert.True(t, errors.HasCode(w.CreateView(context.Background(), ref, " "), errors.ErrCodeInvalidArgument))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadFrame_TruncateInTransaction(t *testing.T) {
	w, mock := newMockWarehouse(t)

	f := frame.New("vbeln", "netwr")
	require.NoError(t, f.Append("1", "10.50"))
	require.NoError(t, f.Append("2", "3.00"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ERP.sales.vbak")).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ERP.sales.vbak (vbeln, netwr) VALUES (?, ?), (?, ?)")).
		WithArgs("1", "10.50", "2", "3.00").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := w.LoadFrame(context.Background(), f, vbak, warehouse.LoadOptions{Disposition: warehouse.WriteTruncate})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadFrame_FailureRollsBack(t *testing.T) {
	w, mock := newMockWarehouse(t)

	f := frame.New("vbeln")
	require.NoError(t, f.Append("1"))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(fmt.Errorf("numeric value 'x' is not recognized"))
	mock.ExpectRollback()

	err := w.LoadFrame(context.Background(), f, vbak, warehouse.LoadOptions{Disposition: warehouse.WriteAppend})
	assert.True(t, errors.HasCode(err, errors.ErrCodeSQLExecution))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRows_NestedValuesAreParsed(t *testing.T) {
	w, mock := newMockWarehouse(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO ERP.sales.vbak (items, vbeln) SELECT PARSE_JSON(column1), column2 FROM VALUES (?, ?), (?, ?)",
	)).
		WithArgs(`[{"posnr":"10"}]`, "1", nil, "2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	rowErrs, err := w.InsertRows(context.Background(), vbak, []warehouse.Record{
		{"vbeln": "1", "items": []any{map[string]any{"posnr": "10"}}},
		{"vbeln": "2"},
	})
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRows_Empty(t *testing.T) {
	w, mock := newMockWarehouse(t)

	rowErrs, err := w.InsertRows(context.Background(), vbak, nil)
	require.NoError(t, err)
	assert.Nil(t, rowErrs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadURI(t *testing.T) {
	w, mock := newMockWarehouse(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"COPY INTO ERP.sales.vbak FROM 'gcs://hoarder/vbak/abc.json.gz' STORAGE_INTEGRATION = LAKE_INT " +
			"FILE_FORMAT = (TYPE = JSON COMPRESSION = GZIP) MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE",
	)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := w.LoadURI(context.Background(), "gs://hoarder/vbak/abc.json.gz", vbak, warehouse.LoadOptions{
		Disposition: warehouse.WriteAppend,
		Format:      warehouse.FormatNDJSON,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadURI_Errors(t *testing.T) {
	w, mock := newMockWarehouse(t)
	ctx := context.Background()

	err := w.LoadURI(ctx, "file:///tmp/x.json", vbak, warehouse.LoadOptions{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))

	mock.ExpectBegin()
	mock.ExpectExec("COPY INTO").WillReturnError(fmt.Errorf("Integration 'LAKE_INT' does not allow location"))
	mock.ExpectRollback()
	err = w.LoadURI(ctx, "s3://lake/vbak/abc.json", vbak, warehouse.LoadOptions{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeJobFailed))

	w.config.StorageIntegration = ""
	err = w.LoadURI(ctx, "s3://lake/vbak/abc.json", vbak, warehouse.LoadOptions{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSQL(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO d.s.t (a, b) VALUES (?, ?)",
		insertSQL("d.s.t", []string{"a", "b"}, nil, 1))
	assert.Equal(t,
		"INSERT INTO d.s.t (a, b) SELECT column1, PARSE_JSON(column2) FROM VALUES (?, ?), (?, ?), (?, ?)",
		insertSQL("d.s.t", []string{"a", "b"}, map[string]bool{"b": true}, 3))
}

func TestFromColumn(t *testing.T) {
	assert.Equal(t,
		schema.ColumnSchema{Name: "erdat", Type: schema.TypeDate, Mode: schema.ModeNullable},
		fromColumn("ERDAT", "DATE", "YES", sql.NullInt64{}))
	assert.Equal(t,
		schema.ColumnSchema{Name: "tags", Type: schema.TypeJSON, Mode: schema.ModeRepeated},
		fromColumn("TAGS", "ARRAY", "YES", sql.NullInt64{}))
	assert.Equal(t, schema.TypeUnmapped, fromColumn("GEO", "GEOGRAPHY", "YES", sql.NullInt64{}).Type)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"not found", &sf.SnowflakeError{Number: errNumNotFound, SQLState: "42S02"}, errors.ErrCodeNotFound},
		{"already exists", &sf.SnowflakeError{Number: errNumAlreadyExists}, errors.ErrCodeAlreadyExists},
		{"privileges", &sf.SnowflakeError{Number: errNumPrivileges, SQLState: "42501"}, errors.ErrCodeSQLPermission},
		{"syntax", fmt.Errorf("wrapped: %w", &sf.SnowflakeError{Number: errNumSyntax}), errors.ErrCodeMalformedQuery},
		{"other driver error", &sf.SnowflakeError{Number: 100038, Message: "Numeric value 'x' is not recognized"}, errors.ErrCodeSQLExecution},
		{"deadline", context.DeadlineExceeded, errors.ErrCodeSQLTimeout},
		{"plain", fmt.Errorf("boom"), errors.ErrCodeSQLExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.GetErrorCode(classify(tt.err, "ERP.sales.vbak")))
		})
	}
	assert.Nil(t, classify(nil, "x"))
}
