// Package reader runs generated SQL against the warehouse and materializes
// the results. Read paths swallow a warehouse rejection of the query text
// and report an empty result; every other failure reaches the caller.
package reader

import (
	"context"

	"ddbridge/internal/observability"
	"ddbridge/internal/query"
	"ddbridge/internal/schema"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

// Reader reads schemas and data through one warehouse handle.
type Reader struct {
	wh    warehouse.Warehouse
	qb    *query.Builder
	log   *observability.Logger
	cache *dictCache
}

// New creates a Reader. A nil logger discards output.
func New(wh warehouse.Warehouse, qb *query.Builder, log *observability.Logger) *Reader {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Reader{wh: wh, qb: qb, log: log.WithField("component", "reader")}
}

// Builder returns the query builder the reader uses.
func (r *Reader) Builder() *query.Builder {
	return r.qb
}

func (r *Reader) ref(dataset, table string) (warehouse.TableRef, error) {
	return warehouse.NewTableRef(r.qb.Project(), dataset, table)
}

// TableExists maps the warehouse not-found condition to false.
func (r *Reader) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	ref, err := r.ref(dataset, table)
	if err != nil {
		return false, err
	}
	ok, err := r.wh.TableExists(ctx, ref)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return false, nil
	}
	return ok, err
}

// GetTable returns table metadata. Not-found propagates.
func (r *Reader) GetTable(ctx context.Context, dataset, table string) (*warehouse.TableInfo, error) {
	ref, err := r.ref(dataset, table)
	if err != nil {
		return nil, err
	}
	return r.wh.GetTable(ctx, ref)
}

// ReadWarehouseSchema returns the column list the warehouse reports for a
// table, or an empty list when the request is rejected.
func (r *Reader) ReadWarehouseSchema(ctx context.Context, dataset, table string) ([]schema.ColumnSchema, error) {
	info, err := r.GetTable(ctx, dataset, table)
	if err != nil {
		if r.soft(err, "get table "+dataset+"."+table) {
			return []schema.ColumnSchema{}, nil
		}
		return nil, err
	}
	return info.Schema, nil
}

// ReadMetadataSchema reads the source system's field definitions for table
// from the metadata dataset, in field position order.
func (r *Reader) ReadMetadataSchema(ctx context.Context, dataset, table string) ([]schema.FieldSpec, error) {
	sql, err := r.qb.SelectMetadataSchema(dataset, table)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if specs, ok := r.cache.get(sql); ok {
			return specs, nil
		}
	}
	rows, err := r.query(ctx, sql)
	if err != nil {
		if r.soft(err, sql) {
			return []schema.FieldSpec{}, nil
		}
		return nil, err
	}

	specs := make([]schema.FieldSpec, len(rows))
	for i, row := range rows {
		specs[i] = fieldSpecFromRecord(row)
	}
	if r.cache != nil && len(specs) > 0 {
		r.cache.set(sql, specs)
	}
	return specs, nil
}

// ReadDomainValues returns the texts of a domain's fixed values.
func (r *Reader) ReadDomainValues(ctx context.Context, dataset, domain string) ([]string, error) {
	sql, err := r.qb.SelectDomainValues(dataset, domain)
	if err != nil {
		return nil, err
	}
	rows, err := r.query(ctx, sql)
	if err != nil {
		if r.soft(err, sql) {
			return []string{}, nil
		}
		return nil, err
	}

	values := make([]string, 0, len(rows))
	for _, v := range flatten(rows, []string{"values"}) {
		values = append(values, asString(v))
	}
	return values, nil
}

// ReadCheckField returns the field of checkTable bound to domain, or ""
// when there is none.
func (r *Reader) ReadCheckField(ctx context.Context, dataset, checkTable, domain string) (string, error) {
	sql, err := r.qb.SelectCheckField(dataset, checkTable, domain)
	if err != nil {
		return "", err
	}
	rows, err := r.query(ctx, sql)
	if err != nil {
		if r.soft(err, sql) {
			return "", nil
		}
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return asString(rows[0]["fieldname"]), nil
}

func (r *Reader) query(ctx context.Context, sql string) ([]warehouse.Record, error) {
	r.log.WithField("sql", sql).Debug("running query")
	return r.wh.Query(ctx, sql)
}

// soft reports whether err is a rejected request, logging it if so.
func (r *Reader) soft(err error, what string) bool {
	if !errors.HasCode(err, errors.ErrCodeMalformedQuery) {
		return false
	}
	r.log.WarnWithFields("warehouse rejected request, returning empty result", map[string]interface{}{
		"request": what,
		"error":   err,
	})
	return true
}
