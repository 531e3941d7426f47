// Package loader moves frames into and out of warehouse tables.
//
// Uploads pick one of two bulk paths: a direct load of the in-memory frame,
// or, when any target column is JSON, a load from a file staged in object
// storage. UploadChunks streams the frame instead, one insert per chunk.
package loader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ddbridge/internal/frame"
	"ddbridge/internal/observability"
	"ddbridge/internal/query"
	"ddbridge/internal/schema"
	"ddbridge/internal/staging"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

// Intent is how an upload treats rows already in the table.
type Intent string

const (
	IntentAppend   Intent = "APPEND"
	IntentTruncate Intent = "TRUNCATE"
)

// ParseIntent accepts append or truncate in any case. Empty means append.
func ParseIntent(s string) (Intent, error) {
	switch Intent(strings.ToUpper(strings.TrimSpace(s))) {
	case "", IntentAppend:
		return IntentAppend, nil
	case IntentTruncate:
		return IntentTruncate, nil
	}
	return "", errors.InvalidArgument("write intent", fmt.Sprintf("%q is neither APPEND nor TRUNCATE", s))
}

// Load paths, also used as metric labels.
const (
	PathDirect  = "direct"
	PathStaged  = "staged"
	PathChunked = "chunked"
)

// Options tune upload behavior.
type Options struct {
	// NativeTruncate loads with the WRITE_TRUNCATE disposition instead of
	// issuing a TRUNCATE statement followed by an appending load.
	NativeTruncate bool
	// ChunkParallelism is how many chunks UploadChunks inserts at once.
	// Values below 2 insert sequentially.
	ChunkParallelism int
}

// UploadRequest describes one upload.
type UploadRequest struct {
	Frame   *frame.Frame
	Schema  []schema.ColumnSchema
	Dataset string
	Table   string
	Intent  Intent
	// Bucket receives the staged file when a JSON column forces the staged
	// path.
	Bucket string
}

// UploadResult reports what Upload did.
type UploadResult struct {
	Path string
	Rows int
	// URI and TableRows are set on the staged path.
	URI       string
	TableRows uint64
}

// Loader runs uploads and downloads against one warehouse.
type Loader struct {
	wh      warehouse.Warehouse
	qb      *query.Builder
	stager  staging.Stager
	opts    Options
	log     *observability.Logger
	metrics *observability.Metrics
}

// New creates a Loader. stager may be nil when no JSON columns are loaded.
func New(wh warehouse.Warehouse, qb *query.Builder, stager staging.Stager, opts Options, log *observability.Logger, metrics *observability.Metrics) *Loader {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Loader{
		wh:      wh,
		qb:      qb,
		stager:  stager,
		opts:    opts,
		log:     log.WithField("component", "loader"),
		metrics: metrics,
	}
}

func (l *Loader) ref(dataset, table string) (warehouse.TableRef, error) {
	return warehouse.NewTableRef(l.qb.Project(), dataset, table)
}

// Download reads the whole table into memory. Columns follow the table
// schema when the warehouse reports one.
func (l *Loader) Download(ctx context.Context, dataset, table string) (*frame.Frame, error) {
	defer l.metrics.ObserveDuration("download", time.Now())

	sql, err := l.qb.SelectAll(dataset, table)
	if err != nil {
		return nil, err
	}
	rows, err := l.wh.Query(ctx, sql)
	if err != nil {
		return nil, err
	}

	var columns []string
	if ref, err := l.ref(dataset, table); err == nil {
		if info, err := l.wh.GetTable(ctx, ref); err == nil {
			columns = schema.Names(info.Schema)
		}
	}

	f := frame.FromRecords(columns, rows)
	l.log.WithFields(map[string]interface{}{"dataset": dataset, "table": table, "rows": f.Len()}).Info("table downloaded")
	return f, nil
}

// Upload writes req.Frame into the table. With IntentTruncate the table is
// emptied first. A failure anywhere propagates.
func (l *Loader) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	defer l.metrics.ObserveDuration("upload", time.Now())

	ref, f, err := l.prepare(&req)
	if err != nil {
		return UploadResult{}, err
	}
	if schema.HasJSON(req.Schema) {
		return l.uploadStaged(ctx, ref, f, req)
	}

	opts := warehouse.LoadOptions{Schema: req.Schema, Format: warehouse.FormatCSV}
	if schema.HasNested(req.Schema) {
		opts.Format = warehouse.FormatNDJSON
	}
	if opts.Disposition, err = l.disposition(ctx, req); err != nil {
		return UploadResult{}, err
	}
	if err := l.wh.LoadFrame(ctx, f, ref, opts); err != nil {
		return UploadResult{}, err
	}

	l.metrics.AddRowsLoaded(PathDirect, f.Len())
	l.log.WithFields(map[string]interface{}{"table": ref.String(), "rows": f.Len(), "intent": string(req.Intent)}).Info("frame loaded")
	return UploadResult{Path: PathDirect, Rows: f.Len()}, nil
}

func (l *Loader) uploadStaged(ctx context.Context, ref warehouse.TableRef, f *frame.Frame, req UploadRequest) (UploadResult, error) {
	if l.stager == nil {
		return UploadResult{}, errors.StagingError(fmt.Errorf("no staging provider configured"))
	}
	obj, err := l.stager.WriteFrameAsJSON(ctx, f, req.Bucket, req.Table)
	if err != nil {
		l.log.ErrorWithFields("cannot get staging file URI", map[string]interface{}{"bucket": req.Bucket, "error": err})
		return UploadResult{}, errors.StagingError(err).WithContext("bucket", req.Bucket)
	}

	opts := warehouse.LoadOptions{Schema: req.Schema, Format: warehouse.FormatNDJSON}
	if opts.Disposition, err = l.disposition(ctx, req); err != nil {
		return UploadResult{}, err
	}
	if err := l.wh.LoadURI(ctx, obj.URI, ref, opts); err != nil {
		return UploadResult{}, err
	}
	l.metrics.AddRowsLoaded(PathStaged, f.Len())

	res := UploadResult{Path: PathStaged, Rows: f.Len(), URI: obj.URI}
	info, err := l.wh.GetTable(ctx, ref)
	if err != nil {
		l.log.WarnWithFields("loaded, but could not read table row count", map[string]interface{}{"table": ref.String(), "error": err})
		return res, nil
	}
	res.TableRows = info.NumRows
	l.log.WithFields(map[string]interface{}{"table": ref.String(), "uri": obj.URI}).Infof("Loaded %d rows to %s", info.NumRows, ref)
	return res, nil
}

// disposition empties the table when the request asks for it and returns
// the write disposition for the load.
func (l *Loader) disposition(ctx context.Context, req UploadRequest) (warehouse.WriteDisposition, error) {
	if req.Intent != IntentTruncate {
		return warehouse.WriteAppend, nil
	}
	if l.opts.NativeTruncate {
		return warehouse.WriteTruncate, nil
	}
	if err := l.truncate(ctx, req.Dataset, req.Table); err != nil {
		return "", err
	}
	return warehouse.WriteAppend, nil
}

func (l *Loader) truncate(ctx context.Context, dataset, table string) error {
	sql, err := l.qb.Truncate(dataset, table)
	if err != nil {
		return err
	}
	l.log.WithField("sql", sql).Debug("truncating table")
	_, err = l.wh.Query(ctx, sql)
	return err
}

// prepare validates req in place and projects the frame onto the schema.
func (l *Loader) prepare(req *UploadRequest) (warehouse.TableRef, *frame.Frame, error) {
	ref, err := l.ref(req.Dataset, req.Table)
	if err != nil {
		return ref, nil, err
	}
	if req.Frame == nil {
		return ref, nil, errors.InvalidArgument("frame", "must not be nil")
	}
	if req.Intent, err = ParseIntent(string(req.Intent)); err != nil {
		return ref, nil, err
	}
	if len(req.Schema) == 0 {
		return ref, req.Frame, nil
	}

	known := make(map[string]bool, len(req.Schema))
	for _, c := range req.Schema {
		known[c.Name] = true
	}
	for _, c := range req.Frame.Columns {
		if !known[c] {
			return ref, nil, errors.InvalidArgument("frame", fmt.Sprintf("column %q is not in the schema", c))
		}
	}
	return ref, req.Frame.Project(schema.Names(req.Schema)), nil
}
