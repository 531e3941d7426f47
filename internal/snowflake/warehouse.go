// Package snowflake implements warehouse.Warehouse on Snowflake through
// database/sql and the gosnowflake driver. A warehouse project maps to a
// Snowflake database and a dataset to a schema.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"

	"ddbridge/internal/frame"
	"ddbridge/internal/observability"
	"ddbridge/internal/schema"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

// Config holds the connection settings.
type Config struct {
	Account            string
	Username           string
	Password           string
	Database           string
	Warehouse          string
	Role               string
	StorageIntegration string
	// Timeout bounds single statements and LoadTimeout whole load
	// transactions. Zero picks the defaults.
	Timeout     time.Duration
	LoadTimeout time.Duration
}

const (
	defaultTimeout     = 30 * time.Second
	defaultLoadTimeout = 10 * time.Minute
)

// ValidateConfig checks the settings needed to open a session.
func ValidateConfig(config Config) error {
	if config.Account == "" {
		return errors.ConfigError("account is required", "warehouse.snowflake.account")
	}
	if config.Username == "" {
		return errors.ConfigError("username is required", "warehouse.snowflake.username")
	}
	if config.Password == "" {
		return errors.ConfigError("password is required", "warehouse.snowflake.password")
	}
	if config.Warehouse == "" {
		return errors.ConfigError("warehouse is required", "warehouse.snowflake.warehouse")
	}
	return nil
}

// Warehouse is a pooled Snowflake session.
type Warehouse struct {
	db     *sql.DB
	config Config
	log    *observability.Logger
}

// New opens a connection pool and pings it, retrying transient failures.
func New(ctx context.Context, config Config, log *observability.Logger) (*Warehouse, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	dsn, err := sf.DSN(&sf.Config{
		Account:   config.Account,
		User:      config.Username,
		Password:  config.Password,
		Database:  config.Database,
		Warehouse: config.Warehouse,
		Role:      config.Role,
	})
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid connection settings: %v", err), "warehouse.snowflake")
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, errors.ConnectionError("Failed to open Snowflake connection", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	w, err := NewWithDB(ctx, db, config, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewWithDB wraps an existing pool. The pool is pinged before returning.
func NewWithDB(ctx context.Context, db *sql.DB, config Config, log *observability.Logger) (*Warehouse, error) {
	if log == nil {
		log = observability.NewNopLogger()
	}
	w := &Warehouse{
		db:     db,
		config: config,
		log:    log.WithFields(map[string]interface{}{"backend": "snowflake", "account": config.Account}),
	}

	err := errors.RetryWithBackoff(ctx, func(ctx context.Context) error {
		pctx, cancel := w.getContext(ctx)
		defer cancel()

		if err := db.PingContext(pctx); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "authentication") {
				return errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Snowflake authentication failed").
					WithSuggestions(
						"Check your username and password",
						"Verify your account identifier is correct",
					)
			}
			return errors.ConnectionError("Failed to connect to Snowflake", err).AsRecoverable()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Warehouse) getContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.statementTimeout())
}

func (w *Warehouse) statementTimeout() time.Duration {
	if w.config.Timeout > 0 {
		return w.config.Timeout
	}
	return defaultTimeout
}

func (w *Warehouse) loadTimeout() time.Duration {
	if w.config.LoadTimeout > 0 {
		return w.config.LoadTimeout
	}
	return defaultLoadTimeout
}

func (w *Warehouse) name(ref warehouse.TableRef) string {
	return fmt.Sprintf("%s.%s.%s", w.database(ref), ref.Dataset, ref.Table)
}

func (w *Warehouse) database(ref warehouse.TableRef) string {
	if ref.Project != "" {
		return ref.Project
	}
	return w.config.Database
}

// Query runs sql and reads every row. Column names are lower-cased since
// Snowflake folds unquoted identifiers to upper case.
func (w *Warehouse) Query(ctx context.Context, query string) ([]warehouse.Record, error) {
	ctx, cancel := w.getContext(ctx)
	defer cancel()

	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err, query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(err, query)
	}
	for i := range cols {
		cols[i] = strings.ToLower(cols[i])
	}

	var out []warehouse.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to scan result row")
		}

		rec := make(warehouse.Record, len(cols))
		for i, c := range cols {
			rec[c] = plainValue(values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, query)
	}
	return out, nil
}

func plainValue(v interface{}) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// TableExists looks the table up in INFORMATION_SCHEMA.
func (w *Warehouse) TableExists(ctx context.Context, ref warehouse.TableRef) (bool, error) {
	_, err := w.GetTable(ctx, ref)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetTable reads table metadata and columns from INFORMATION_SCHEMA.
func (w *Warehouse) GetTable(ctx context.Context, ref warehouse.TableRef) (*warehouse.TableInfo, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := w.getContext(ctx)
	defer cancel()

	db := w.database(ref)
	schemaName := strings.ToUpper(ref.Dataset)
	tableName := strings.ToUpper(ref.Table)

	tablesSQL := fmt.Sprintf(
		"SELECT table_type, row_count, bytes FROM %s.information_schema.tables WHERE table_schema = ? AND table_name = ?", db)
	var (
		tableType string
		rowCount  sql.NullInt64
		bytes     sql.NullInt64
	)
	err := w.db.QueryRowContext(ctx, tablesSQL, schemaName, tableName).Scan(&tableType, &rowCount, &bytes)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(w.name(ref), fmt.Errorf("no such table or view"))
	}
	if err != nil {
		return nil, classify(err, tablesSQL)
	}

	columnsSQL := fmt.Sprintf(
		"SELECT column_name, data_type, is_nullable, numeric_scale FROM %s.information_schema.columns "+
			"WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position", db)
	rows, err := w.db.QueryContext(ctx, columnsSQL, schemaName, tableName)
	if err != nil {
		return nil, classify(err, columnsSQL)
	}
	defer rows.Close()

	var cols []schema.ColumnSchema
	for rows.Next() {
		var (
			name, dataType, nullable string
			scale                    sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &nullable, &scale); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to scan column metadata")
		}
		cols = append(cols, fromColumn(name, dataType, nullable, scale))
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, columnsSQL)
	}

	info := &warehouse.TableInfo{
		Ref:    ref,
		Schema: cols,
		IsView: strings.EqualFold(tableType, "VIEW"),
	}
	if rowCount.Valid && rowCount.Int64 > 0 {
		info.NumRows = uint64(rowCount.Int64)
	}
	if bytes.Valid {
		info.NumBytes = bytes.Int64
	}
	return info, nil
}

// CreateTable issues CREATE TABLE. An existing table is reported as
// errors.ErrCodeAlreadyExists.
func (w *Warehouse) CreateTable(ctx context.Context, ref warehouse.TableRef, columns []schema.ColumnSchema) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	ddl, err := createTableSQL(w.name(ref), columns)
	if err != nil {
		return err
	}
	return w.exec(ctx, ddl)
}

// CreateView issues CREATE VIEW over sql.
func (w *Warehouse) CreateView(ctx context.Context, ref warehouse.TableRef, query string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		return errors.InvalidArgument("view query", "must not be empty")
	}
	return w.exec(ctx, fmt.Sprintf("CREATE VIEW %s AS %s", w.name(ref), strings.TrimSuffix(strings.TrimSpace(query), ";")))
}

// LoadFrame inserts the frame in one transaction. WriteTruncate deletes
// the existing rows inside the same transaction.
func (w *Warehouse) LoadFrame(ctx context.Context, f *frame.Frame, ref warehouse.TableRef, opts warehouse.LoadOptions) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if f == nil {
		return errors.InvalidArgument("frame", "must not be nil")
	}

	nested := jsonColumns(opts.Schema)
	return w.inTx(ctx, w.loadTimeout(), func(ctx context.Context, tx *sql.Tx) error {
		if opts.Disposition == warehouse.WriteTruncate {
			if err := execTx(ctx, tx, "DELETE FROM "+w.name(ref)); err != nil {
				return err
			}
		}
		return w.insert(ctx, tx, ref, f.Columns, f.Rows, nested)
	})
}

// LoadURI copies a staged file into the table with COPY INTO. Objects on
// S3 and GCS are read through the configured storage integration.
func (w *Warehouse) LoadURI(ctx context.Context, uri string, ref warehouse.TableRef, opts warehouse.LoadOptions) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	stmt, err := w.copySQL(uri, ref, opts)
	if err != nil {
		return err
	}

	return w.inTx(ctx, w.loadTimeout(), func(ctx context.Context, tx *sql.Tx) error {
		if opts.Disposition == warehouse.WriteTruncate {
			if err := execTx(ctx, tx, "DELETE FROM "+w.name(ref)); err != nil {
				return err
			}
		}
		if err := execTx(ctx, tx, stmt); err != nil {
			return errors.JobError("copy "+w.name(ref), err).WithContext("uri", uri)
		}
		return nil
	})
}

func (w *Warehouse) copySQL(uri string, ref warehouse.TableRef, opts warehouse.LoadOptions) (string, error) {
	var location string
	switch {
	case strings.HasPrefix(uri, "s3://"), strings.HasPrefix(uri, "gcs://"):
		location = uri
	case strings.HasPrefix(uri, "gs://"):
		location = "gcs://" + strings.TrimPrefix(uri, "gs://")
	default:
		return "", errors.InvalidArgument("uri", "Snowflake loads need an s3:// or gs:// URI")
	}
	if w.config.StorageIntegration == "" {
		return "", errors.ConfigError("storage integration is required for staged loads", "warehouse.snowflake.storage_integration")
	}

	var format string
	if opts.Format == warehouse.FormatCSV {
		format = "TYPE = CSV SKIP_HEADER = 1 FIELD_OPTIONALLY_ENCLOSED_BY = '\"'"
	} else {
		format = "TYPE = JSON"
	}
	if strings.HasSuffix(uri, ".gz") {
		format += " COMPRESSION = GZIP"
	}

	stmt := fmt.Sprintf("COPY INTO %s FROM '%s' STORAGE_INTEGRATION = %s FILE_FORMAT = (%s)",
		w.name(ref), strings.ReplaceAll(location, "'", "''"), w.config.StorageIntegration, format)
	if opts.Format != warehouse.FormatCSV {
		stmt += " MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE"
	}
	return stmt, nil
}

// InsertRows inserts rows in one transaction. Snowflake rejects a
// statement as a whole, so failures are returned as an error rather than
// per-row errors.
func (w *Warehouse) InsertRows(ctx context.Context, ref warehouse.TableRef, rows []warehouse.Record) ([]warehouse.RowError, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := recordColumns(rows)
	values := make([][]any, len(rows))
	nested := make(map[string]bool)
	for i, rec := range rows {
		values[i] = make([]any, len(columns))
		for j, c := range columns {
			v := rec[c]
			if isNested(v) {
				nested[c] = true
			}
			values[i][j] = v
		}
	}

	err := w.inTx(ctx, w.statementTimeout(), func(ctx context.Context, tx *sql.Tx) error {
		return w.insert(ctx, tx, ref, columns, values, nested)
	})
	return nil, err
}

func recordColumns(rows []warehouse.Record) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, rec := range rows {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// Close releases the pool.
func (w *Warehouse) Close() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

func (w *Warehouse) exec(ctx context.Context, stmt string) error {
	ctx, cancel := w.getContext(ctx)
	defer cancel()

	w.log.WithField("sql", stmt).Debug("executing statement")
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return classify(err, stmt)
	}
	return nil
}

func (w *Warehouse) inTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to commit transaction")
	}
	return nil
}

func execTx(ctx context.Context, tx *sql.Tx, stmt string, args ...any) error {
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return classify(err, stmt)
	}
	return nil
}
