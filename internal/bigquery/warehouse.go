// Package bigquery implements warehouse.Warehouse on Google BigQuery.
package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"ddbridge/internal/frame"
	"ddbridge/internal/observability"
	"ddbridge/internal/schema"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

// Config selects the project and job location.
type Config struct {
	Project         string
	Location        string
	CredentialsFile string
}

// Warehouse is a BigQuery client bound to one project.
type Warehouse struct {
	client *bq.Client
	log    *observability.Logger
}

// New opens a client. Extra client options are passed through, which tests
// use to point the client at a local server.
func New(ctx context.Context, cfg Config, log *observability.Logger, opts ...option.ClientOption) (*Warehouse, error) {
	if cfg.Project == "" {
		return nil, errors.ConfigError("project is required", "warehouse.project")
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if log == nil {
		log = observability.NewNopLogger()
	}

	client, err := bq.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, errors.ConnectionError("failed to create BigQuery client", err)
	}
	client.Location = cfg.Location

	return &Warehouse{
		client: client,
		log:    log.WithFields(map[string]interface{}{"backend": "bigquery", "project": cfg.Project}),
	}, nil
}

func (w *Warehouse) table(ref warehouse.TableRef) *bq.Table {
	return w.client.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table)
}

// Query runs sql and reads every row.
func (w *Warehouse) Query(ctx context.Context, sql string) ([]warehouse.Record, error) {
	it, err := w.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, classify(err, sql)
	}

	var out []warehouse.Record
	for {
		row := map[string]bq.Value{}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(err, sql)
		}
		rec := make(warehouse.Record, len(row))
		for k, v := range row {
			rec[k] = plainValue(v)
		}
		out = append(out, rec)
	}
	return out, nil
}

// plainValue turns BigQuery scalars that do not print well into strings.
// Nested values are left to the reader.
func plainValue(v bq.Value) any {
	switch x := v.(type) {
	case *big.Rat:
		if x == nil {
			return nil
		}
		return bq.NumericString(x)
	default:
		return x
	}
}

// TableExists reports false on a not-found response.
func (w *Warehouse) TableExists(ctx context.Context, ref warehouse.TableRef) (bool, error) {
	_, err := w.GetTable(ctx, ref)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetTable reads table metadata.
func (w *Warehouse) GetTable(ctx context.Context, ref warehouse.TableRef) (*warehouse.TableInfo, error) {
	md, err := w.table(ref).Metadata(ctx)
	if err != nil {
		return nil, classify(err, ref.String())
	}
	return &warehouse.TableInfo{
		Ref:      ref,
		NumRows:  md.NumRows,
		NumBytes: md.NumBytes,
		Schema:   fromSchema(md.Schema),
		IsView:   md.Type == bq.ViewTable,
	}, nil
}

// CreateTable creates an empty table.
func (w *Warehouse) CreateTable(ctx context.Context, ref warehouse.TableRef, columns []schema.ColumnSchema) error {
	s, err := toSchema(columns)
	if err != nil {
		return err
	}
	if err := w.table(ref).Create(ctx, &bq.TableMetadata{Schema: s}); err != nil {
		return classify(err, ref.String())
	}
	w.log.WithField("table", ref.String()).Debug("table created")
	return nil
}

// CreateView creates a view over sql.
func (w *Warehouse) CreateView(ctx context.Context, ref warehouse.TableRef, sql string) error {
	if err := w.table(ref).Create(ctx, &bq.TableMetadata{ViewQuery: sql}); err != nil {
		return classify(err, ref.String())
	}
	return nil
}

// LoadFrame loads the frame as CSV from memory and waits for the job.
func (w *Warehouse) LoadFrame(ctx context.Context, f *frame.Frame, ref warehouse.TableRef, opts warehouse.LoadOptions) error {
	src, err := frameSource(f, opts.Format)
	if err != nil {
		return err
	}
	return w.load(ctx, ref, src, &src.FileConfig, opts)
}

// frameSource encodes f for a load job. RECORD and REPEATED columns only
// load from newline-delimited JSON.
func frameSource(f *frame.Frame, format warehouse.SourceFormat) (*bq.ReaderSource, error) {
	var buf bytes.Buffer
	if format == warehouse.FormatNDJSON {
		if err := f.WriteNDJSON(&buf); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidArgument, "cannot encode frame as NDJSON")
		}
		src := bq.NewReaderSource(&buf)
		src.SourceFormat = bq.JSON
		return src, nil
	}

	if err := f.WriteCSV(&buf); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidArgument, "cannot encode frame as CSV")
	}
	src := bq.NewReaderSource(&buf)
	src.SourceFormat = bq.CSV
	src.SkipLeadingRows = 1
	src.AllowQuotedNewlines = true
	return src, nil
}

// LoadURI loads a gs:// object and waits for the job.
func (w *Warehouse) LoadURI(ctx context.Context, uri string, ref warehouse.TableRef, opts warehouse.LoadOptions) error {
	if !strings.HasPrefix(uri, "gs://") {
		return errors.InvalidArgument("uri", fmt.Sprintf("BigQuery loads only from gs:// URIs, got %s", uri))
	}
	gcsRef := bq.NewGCSReference(uri)
	gcsRef.SourceFormat = bq.DataFormat(opts.Format)
	if opts.Format == "" {
		gcsRef.SourceFormat = bq.JSON
	}
	if strings.HasSuffix(uri, ".gz") {
		gcsRef.Compression = bq.Gzip
	}
	return w.load(ctx, ref, gcsRef, &gcsRef.FileConfig, opts)
}

func (w *Warehouse) load(ctx context.Context, ref warehouse.TableRef, src bq.LoadSource, fc *bq.FileConfig, opts warehouse.LoadOptions) error {
	s, err := toSchema(opts.Schema)
	if err != nil {
		return err
	}
	fc.Schema = s

	loader := w.table(ref).LoaderFrom(src)
	if opts.Disposition != "" {
		loader.WriteDisposition = bq.TableWriteDisposition(opts.Disposition)
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return classify(err, ref.String())
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return errors.JobError("load", err).WithContext("job_id", job.ID())
	}
	if err := status.Err(); err != nil {
		return errors.JobError("load", err).WithContext("job_id", job.ID())
	}

	w.log.WithFields(map[string]interface{}{"table": ref.String(), "job_id": job.ID()}).Debug("load job done")
	return nil
}

// InsertRows streams rows with the insertAll API. Rows the service rejects
// come back as row errors; a failed call is an error.
func (w *Warehouse) InsertRows(ctx context.Context, ref warehouse.TableRef, rows []warehouse.Record) ([]warehouse.RowError, error) {
	savers := make([]*recordSaver, len(rows))
	for i, r := range rows {
		savers[i] = &recordSaver{rec: r}
	}

	err := w.table(ref).Inserter().Put(ctx, savers)
	if err == nil {
		return nil, nil
	}

	var multi bq.PutMultiError
	if stderrors.As(err, &multi) {
		out := make([]warehouse.RowError, 0, len(multi))
		for _, rie := range multi {
			out = append(out, warehouse.RowError{Row: rie.RowIndex, Message: rie.Errors.Error()})
		}
		return out, nil
	}
	return nil, classify(err, ref.String())
}

// Close releases the client.
func (w *Warehouse) Close() error {
	return w.client.Close()
}

// recordSaver adapts a Record to the inserter. Nested maps and slices are
// sent as JSON text so they land in JSON columns.
type recordSaver struct {
	rec warehouse.Record
}

func (s *recordSaver) Save() (map[string]bq.Value, string, error) {
	out := make(map[string]bq.Value, len(s.rec))
	for k, v := range s.rec {
		switch v.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, "", fmt.Errorf("column %s: %w", k, err)
			}
			out[k] = string(b)
		default:
			out[k] = v
		}
	}
	return out, "", nil
}

var _ warehouse.Warehouse = (*Warehouse)(nil)
