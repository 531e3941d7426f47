package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddbridge/internal/query"
	"ddbridge/internal/schema"
	"ddbridge/internal/testutil"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
)

func setup(t *testing.T) (*Reader, *testutil.MockWarehouse, *query.Builder) {
	t.Helper()
	wh := testutil.NewMockWarehouse()
	qb := query.NewBuilder("proj")
	return New(wh, qb, nil), wh, qb
}

func malformed() error {
	return errors.MalformedQuery("SELECT", fmt.Errorf("googleapi: Error 400: Syntax error"))
}

func TestTableExists(t *testing.T) {
	r, wh, _ := setup(t)
	ctx := context.Background()
	wh.AddTable("sales", "vbak", nil)

	ok, err := r.TableExists(ctx, "sales", "vbak")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TableExists(ctx, "sales", "vbap")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTableExists_NotFoundErrorIsFalse(t *testing.T) {
	r, wh, _ := setup(t)
	wh.GetTableError = errors.NotFound("proj.missing", fmt.Errorf("dataset missing"))

	ok, err := r.TableExists(context.Background(), "missing", "vbak")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTableExists_OtherFailurePropagates(t *testing.T) {
	r, wh, _ := setup(t)
	wh.GetTableError = errors.ConnectionError("bigquery", fmt.Errorf("dial tcp: refused"))

	_, err := r.TableExists(context.Background(), "sales", "vbak")
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
}

func TestTableExists_InvalidRef(t *testing.T) {
	r, _, _ := setup(t)
	_, err := r.TableExists(context.Background(), "", "vbak")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
}

func TestReadWarehouseSchema(t *testing.T) {
	r, wh, _ := setup(t)
	ctx := context.Background()
	cols := []schema.ColumnSchema{{Name: "vbeln", Type: schema.TypeString, Mode: schema.ModeRequired}}
	wh.AddTable("sales", "vbak", cols)

	got, err := r.ReadWarehouseSchema(ctx, "sales", "vbak")
	require.NoError(t, err)
	assert.Equal(t, cols, got)

	_, err = r.ReadWarehouseSchema(ctx, "sales", "nope")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

	wh.GetTableError = malformed()
	got, err = r.ReadWarehouseSchema(ctx, "sales", "vbak")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadMetadataSchema(t *testing.T) {
	r, wh, qb := setup(t)
	sql, err := qb.SelectMetadataSchema("meta", "vbak")
	require.NoError(t, err)

	wh.SetQueryResult(sql,
		warehouse.Record{"fieldname": "MANDT", "keyflag": "X", "checktable": "T000", "saptype": "C", "length": int64(3), "decimals": int64(0), "domname": "MANDT"},
		warehouse.Record{"fieldname": "NETWR", "keyflag": "", "checktable": nil, "saptype": "P", "length": json.Number("15"), "decimals": "2", "domname": "WERTV8"},
	)

	specs, err := r.ReadMetadataSchema(context.Background(), "meta", "vbak")
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, schema.FieldSpec{FieldName: "MANDT", KeyFlag: "X", CheckTable: "T000", SAPType: "C", Length: 3, DomName: "MANDT"}, specs[0])
	assert.Equal(t, int64(15), specs[1].Length)
	assert.Equal(t, int64(2), specs[1].Decimals)
	assert.Equal(t, "", specs[1].CheckTable)
}

func TestReadMetadataSchema_MalformedIsEmpty(t *testing.T) {
	r, wh, qb := setup(t)
	sql, _ := qb.SelectMetadataSchema("meta", "vbak")
	wh.SetQueryError(sql, malformed())

	specs, err := r.ReadMetadataSchema(context.Background(), "meta", "vbak")
	require.NoError(t, err)
	assert.NotNil(t, specs)
	assert.Empty(t, specs)
}

func TestReadMetadataSchema_OtherFailurePropagates(t *testing.T) {
	r, wh, qb := setup(t)
	sql, _ := qb.SelectMetadataSchema("meta", "vbak")
	wh.SetQueryError(sql, errors.JobError("query", fmt.Errorf("quota exceeded")))

	_, err := r.ReadMetadataSchema(context.Background(), "meta", "vbak")
	assert.True(t, errors.HasCode(err, errors.ErrCodeJobFailed))
}

func TestReadDomainValues(t *testing.T) {
	r, wh, qb := setup(t)
	ctx := context.Background()
	sql, _ := qb.SelectDomainValues("meta", "auart")
	wh.SetQueryResult(sql, warehouse.Record{"values": "Standard Order"}, warehouse.Record{"values": "Rush Order"})

	values, err := r.ReadDomainValues(ctx, "meta", "auart")
	require.NoError(t, err)
	assert.Equal(t, []string{"Standard Order", "Rush Order"}, values)

	wh.SetQueryError(sql, malformed())
	values, err = r.ReadDomainValues(ctx, "meta", "auart")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestReadCheckField(t *testing.T) {
	r, wh, qb := setup(t)
	ctx := context.Background()
	sql, _ := qb.SelectCheckField("meta", "tvak", "auart")

	got, err := r.ReadCheckField(ctx, "meta", "tvak", "auart")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	wh.SetQueryResult(sql, warehouse.Record{"fieldname": "AUART"}, warehouse.Record{"fieldname": "OTHER"})
	got, err = r.ReadCheckField(ctx, "meta", "tvak", "auart")
	require.NoError(t, err)
	assert.Equal(t, "AUART", got)

	wh.SetQueryError(sql, malformed())
	got, err = r.ReadCheckField(ctx, "meta", "tvak", "auart")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestReadField(t *testing.T) {
	r, wh, qb := setup(t)
	sql, _ := qb.SelectField("sales", "vbak", "vbeln")
	wh.SetQueryResult(sql, warehouse.Record{"vbeln": "1"}, warehouse.Record{"vbeln": "2"})

	values, err := r.ReadField(context.Background(), "sales", "vbak", "vbeln")
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2"}, values)
}

func TestReadColumns_SoftAndLoud(t *testing.T) {
	r, wh, qb := setup(t)
	ctx := context.Background()
	fields := []string{"vbeln", "erdat"}
	filter := &query.Filter{Field: "mandt", Value: "100"}
	sql, _ := qb.SelectFields("sales", "vbak", fields, filter)

	wh.SetQueryResult(sql, warehouse.Record{"vbeln": "1", "erdat": "2024-01-01"})
	rows, err := r.ReadColumns(ctx, "sales", "vbak", fields, filter)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	wh.SetQueryError(sql, malformed())
	rows, err = r.ReadColumns(ctx, "sales", "vbak", fields, filter)
	require.NoError(t, err)
	assert.Empty(t, rows)

	wh.SetQueryError(sql, errors.New(errors.ErrCodeSQLPermission, "access denied"))
	_, err = r.ReadColumns(ctx, "sales", "vbak", fields, filter)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSQLPermission))
}

func TestReadHeaderAndDateKeyColumns(t *testing.T) {
	r, wh, qb := setup(t)
	ctx := context.Background()
	fields := []string{"vbeln"}
	client := query.Filter{Field: "mandt", Value: "100"}
	link := query.Filter{Field: "vbeln", Value: "42"}
	date := query.Filter{Field: "erdat", Value: "2024-01-01"}

	headerSQL, _ := qb.SelectHeaderFields("sales", "vbak", fields, client, link)
	dateSQL, _ := qb.SelectFieldsWithDateAndKey("sales", "vbak", fields, date, link)
	wh.SetQueryResult(headerSQL, warehouse.Record{"vbeln": "42"})
	wh.SetQueryError(dateSQL, malformed())

	rows, err := r.ReadHeaderColumns(ctx, "sales", "vbak", fields, client, link)
	require.NoError(t, err)
	assert.Equal(t, []warehouse.Record{{"vbeln": "42"}}, rows)

	rows, err = r.ReadColumnsByDateAndKey(ctx, "sales", "vbak", fields, date, link)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

type vendorValue interface{}

func TestReadColumnsWithRepeated(t *testing.T) {
	r, wh, qb := setup(t)
	fields := []string{"vbeln", "items"}
	sql, _ := qb.SelectFields("sales", "vbak", fields, nil)

	wh.SetQueryResult(sql, warehouse.Record{
		"vbeln": "1",
		"items": []vendorValue{
			map[string]vendorValue{
				"posnr":    "10",
				"schedule": []vendorValue{map[string]vendorValue{"etenr": "1"}},
			},
		},
		"raw": []byte("x"),
	})

	rows, err := r.ReadColumnsWithRepeated(context.Background(), "sales", "vbak", fields, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	want := []any{
		map[string]any{
			"posnr":    "10",
			"schedule": []any{map[string]any{"etenr": "1"}},
		},
	}
	assert.Equal(t, want, rows[0]["items"])
	assert.Equal(t, []byte("x"), rows[0]["raw"])
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, normalize(nil))
	assert.Nil(t, normalize([]string(nil)))
	assert.Equal(t, []any{1, 2}, normalize([2]int{1, 2}))
	assert.Equal(t, map[int]string{1: "a"}, normalize(map[int]string{1: "a"}))
	assert.Equal(t, "s", normalize("s"))
}
