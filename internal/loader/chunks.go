package loader

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ddbridge/internal/frame"
	"ddbridge/internal/observability"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

// ChunkResult is the outcome of inserting rows [Start, End). A chunk is
// all or nothing: Inserted is either End-Start or zero.
type ChunkResult struct {
	Index    int                  `json:"index"`
	Start    int                  `json:"start"`
	End      int                  `json:"end"`
	Inserted int                  `json:"inserted"`
	Errors   []warehouse.RowError `json:"errors,omitempty"`
}

// OK reports whether the chunk was inserted without errors.
func (c ChunkResult) OK() bool {
	return len(c.Errors) == 0
}

// ChunkReport lists every chunk in order.
type ChunkReport struct {
	Chunks []ChunkResult `json:"chunks"`
}

// Inserted returns the number of rows inserted across all chunks.
func (r ChunkReport) Inserted() int {
	n := 0
	for _, c := range r.Chunks {
		n += c.Inserted
	}
	return n
}

// Failed returns the chunks that reported errors.
func (r ChunkReport) Failed() []ChunkResult {
	var out []ChunkResult
	for _, c := range r.Chunks {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// UploadChunks inserts req.Frame in contiguous chunks of chunkSize rows.
// A failing chunk is recorded in the report and the remaining chunks still
// run. With IntentTruncate the table is truncated once before the first
// chunk; a truncate failure aborts before anything is inserted.
func (l *Loader) UploadChunks(ctx context.Context, chunkSize int, req UploadRequest) (ChunkReport, error) {
	defer l.metrics.ObserveDuration("upload_chunks", time.Now())

	if chunkSize <= 0 {
		return ChunkReport{}, errors.InvalidArgument("chunk size", "must be positive")
	}
	ref, f, err := l.prepare(&req)
	if err != nil {
		return ChunkReport{}, err
	}
	if req.Intent == IntentTruncate {
		if err := l.truncate(ctx, req.Dataset, req.Table); err != nil {
			return ChunkReport{}, err
		}
	}

	n := f.Len()
	report := ChunkReport{Chunks: make([]ChunkResult, 0, (n+chunkSize-1)/chunkSize)}
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		report.Chunks = append(report.Chunks, ChunkResult{Index: len(report.Chunks) + 1, Start: start, End: end})
	}

	if l.opts.ChunkParallelism < 2 {
		for i := range report.Chunks {
			l.insertChunk(ctx, ref, f, &report.Chunks[i])
		}
	} else {
		var g errgroup.Group
		g.SetLimit(l.opts.ChunkParallelism)
		for i := range report.Chunks {
			c := &report.Chunks[i]
			g.Go(func() error {
				l.insertChunk(ctx, ref, f, c)
				return nil
			})
		}
		_ = g.Wait()
	}

	l.log.WithFields(map[string]interface{}{
		"table":    ref.String(),
		"chunks":   len(report.Chunks),
		"failed":   len(report.Failed()),
		"inserted": report.Inserted(),
	}).Info("chunked upload finished")
	return report, nil
}

func (l *Loader) insertChunk(ctx context.Context, ref warehouse.TableRef, f *frame.Frame, c *ChunkResult) {
	log := l.log.WithFields(map[string]interface{}{"table": ref.String(), "batch": c.Index})

	if err := ctx.Err(); err != nil {
		c.Errors = []warehouse.RowError{{Row: -1, Message: err.Error()}}
	} else {
		rows := f.Slice(c.Start, c.End).Records()
		rowErrs, err := l.wh.InsertRows(ctx, ref, rows)
		switch {
		case err != nil:
			c.Errors = []warehouse.RowError{{Row: -1, Message: err.Error()}}
		case len(rowErrs) > 0:
			c.Errors = rowErrs
		default:
			c.Inserted = len(rows)
		}
	}

	if c.OK() {
		l.metrics.IncChunk(observability.ChunkStatusOK)
		l.metrics.AddRowsLoaded(PathChunked, c.Inserted)
		log.Infof("Batch %d inserted successfully.", c.Index)
		return
	}
	l.metrics.IncChunk(observability.ChunkStatusFailed)
	log.WarnWithFields("Encountered errors while inserting batch", map[string]interface{}{"errors": c.Errors})
}
