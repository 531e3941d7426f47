// Package provision creates warehouse tables from the source system's data
// dictionary, and views from caller SQL.
package provision

import (
	"context"
	"fmt"
	"time"

	"ddbridge/internal/observability"
	"ddbridge/internal/reader"
	"ddbridge/internal/schema"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

// Outcome says what CreateTable did.
type Outcome int

const (
	// OutcomeExisted means the table was already there and nothing was done.
	OutcomeExisted Outcome = iota
	// OutcomeCreated means a create call was issued and succeeded.
	OutcomeCreated
)

func (o Outcome) String() string {
	if o == OutcomeCreated {
		return "created"
	}
	return "existed"
}

// ViewResult reports a view creation. Err is set when Created is false.
type ViewResult struct {
	Created bool
	Err     error
}

// Provisioner creates tables and views.
type Provisioner struct {
	wh      warehouse.Warehouse
	reader  *reader.Reader
	log     *observability.Logger
	metrics *observability.Metrics
}

// New creates a Provisioner sharing the reader's warehouse handle.
func New(wh warehouse.Warehouse, r *reader.Reader, log *observability.Logger, metrics *observability.Metrics) *Provisioner {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Provisioner{
		wh:      wh,
		reader:  r,
		log:     log.WithField("component", "provision"),
		metrics: metrics,
	}
}

// CreateTable creates dataset.table from the field definitions stored for
// table in metaDataset. An existing table is left untouched. Failures to
// read the definitions propagate, and so does a schema that maps to no
// columns or to columns without a warehouse type.
func (p *Provisioner) CreateTable(ctx context.Context, metaDataset, dataset, table string) (Outcome, error) {
	defer p.metrics.ObserveDuration("create_table", time.Now())
	log := p.log.WithFields(map[string]interface{}{"dataset": dataset, "table": table})

	exists, err := p.reader.TableExists(ctx, dataset, table)
	if err != nil {
		return OutcomeExisted, err
	}
	if exists {
		log.Debug("table exists, nothing to do")
		return OutcomeExisted, nil
	}

	columns, err := p.PlanTable(ctx, metaDataset, table)
	if err != nil {
		return OutcomeExisted, err
	}

	ref, err := warehouse.NewTableRef(p.reader.Builder().Project(), dataset, table)
	if err != nil {
		return OutcomeExisted, err
	}
	if err := p.wh.CreateTable(ctx, ref, columns); err != nil {
		return OutcomeExisted, err
	}

	log.InfoWithFields("table created", map[string]interface{}{"columns": len(columns)})
	return OutcomeCreated, nil
}

// PlanTable reads and maps the field definitions of table without creating
// anything.
func (p *Provisioner) PlanTable(ctx context.Context, metaDataset, table string) ([]schema.ColumnSchema, error) {
	specs, err := p.reader.ReadMetadataSchema(ctx, metaDataset, table)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, errors.New(errors.ErrCodeEmptySchema,
			fmt.Sprintf("no field definitions for %s in %s", table, metaDataset)).
			WithContext("table", table).
			WithContext("metadata_dataset", metaDataset).
			WithSuggestions("Check the table name and that the metadata dataset holds its dictionary rows")
	}

	columns := schema.Map(specs)
	if err := schema.Validate(columns); err != nil {
		return nil, err
	}
	return columns, nil
}

// CreateView creates dataset.view over sql. The SQL is not checked.
// Failures are logged and returned in the result, never as an error.
func (p *Provisioner) CreateView(ctx context.Context, dataset, view, sql string) ViewResult {
	log := p.log.WithFields(map[string]interface{}{"dataset": dataset, "view": view})

	ref, err := warehouse.NewTableRef(p.reader.Builder().Project(), dataset, view)
	if err == nil {
		err = p.wh.CreateView(ctx, ref, sql)
	}
	if err != nil {
		log.ErrorWithFields("view creation failed", map[string]interface{}{"error": err})
		return ViewResult{Err: err}
	}

	log.Info("view created")
	return ViewResult{Created: true}
}
