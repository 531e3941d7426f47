package reader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddbridge/internal/warehouse"
)

func TestMetadataCache(t *testing.T) {
	r, wh, qb := setup(t)
	r.EnableMetadataCache(10, time.Minute)
	ctx := context.Background()

	sql, err := qb.SelectMetadataSchema("meta", "vbak")
	require.NoError(t, err)
	wh.SetQueryResult(sql, warehouse.Record{"fieldname": "VBELN", "keyflag": "X", "saptype": "C"})

	for i := 0; i < 3; i++ {
		specs, err := r.ReadMetadataSchema(ctx, "meta", "vbak")
		require.NoError(t, err)
		require.Len(t, specs, 1)
		assert.Equal(t, "VBELN", specs[0].FieldName)
	}

	assert.Len(t, wh.CallsTo("Query"), 1)
	assert.Equal(t, CacheStats{Hits: 2, Misses: 1, Items: 1}, r.MetadataCacheStats())
}

func TestMetadataCache_CallerMutationDoesNotLeak(t *testing.T) {
	r, wh, qb := setup(t)
	r.EnableMetadataCache(10, time.Minute)
	ctx := context.Background()

	sql, err := qb.SelectMetadataSchema("meta", "vbak")
	require.NoError(t, err)
	wh.SetQueryResult(sql, warehouse.Record{"fieldname": "VBELN", "saptype": "C"})

	first, err := r.ReadMetadataSchema(ctx, "meta", "vbak")
	require.NoError(t, err)
	first[0].SAPType = "Z"

	second, err := r.ReadMetadataSchema(ctx, "meta", "vbak")
	require.NoError(t, err)
	assert.Equal(t, "C", second[0].SAPType)

	second[0].SAPType = "Y"
	third, err := r.ReadMetadataSchema(ctx, "meta", "vbak")
	require.NoError(t, err)
	assert.Equal(t, "C", third[0].SAPType)
}

func TestMetadataCache_Expiry(t *testing.T) {
	r, wh, qb := setup(t)
	r.EnableMetadataCache(10, time.Minute)
	now := time.Now()
	r.cache.now = func() time.Time { return now }
	ctx := context.Background()

	sql, err := qb.SelectMetadataSchema("meta", "vbak")
	require.NoError(t, err)
	wh.SetQueryResult(sql, warehouse.Record{"fieldname": "VBELN"})

	_, err = r.ReadMetadataSchema(ctx, "meta", "vbak")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = r.ReadMetadataSchema(ctx, "meta", "vbak")
	require.NoError(t, err)

	assert.Len(t, wh.CallsTo("Query"), 2)
}

func TestMetadataCache_EmptyNotCached(t *testing.T) {
	r, wh, _ := setup(t)
	r.EnableMetadataCache(10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		specs, err := r.ReadMetadataSchema(ctx, "meta", "vbak")
		require.NoError(t, err)
		assert.Empty(t, specs)
	}
	assert.Len(t, wh.CallsTo("Query"), 2)
}

func TestMetadataCache_Eviction(t *testing.T) {
	c := newDictCache(1, time.Minute)
	c.set("a", nil)
	c.set("b", nil)

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
}

func TestMetadataCache_Disabled(t *testing.T) {
	r, _, _ := setup(t)
	r.EnableMetadataCache(0, time.Minute)
	assert.Nil(t, r.cache)
	assert.Equal(t, CacheStats{}, r.MetadataCacheStats())
}
