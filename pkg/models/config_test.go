package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigUnmarshal(t *testing.T) {
	input := `
warehouse:
  backend: snowflake
  project: ERP_RAW
  metadata_dataset: META
  snowflake:
    account: xy12345.us-east-1
    username: loader
    password: ENC[abc]
    warehouse: LOAD_WH
    storage_integration: S3_INT
    timeout: 60
    load_timeout: 1800
staging:
  provider: s3
  bucket: erp-staging
  gzip: true
  s3:
    endpoint: https://minio.local:9000
    access_key: ak
    secret_key: keyring:minio
    use_ssl: true
load:
  native_truncate: true
  chunk_size: 1000
  chunk_parallelism: 4
logging:
  level: debug
  format: text
server:
  addr: 127.0.0.1:9090
  metadata_cache_ttl: 0
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(input), &cfg))

	assert.Equal(t, BackendSnowflake, cfg.Warehouse.Backend)
	assert.Equal(t, "META", cfg.Warehouse.MetadataDataset)
	assert.Equal(t, "S3_INT", cfg.Warehouse.Snowflake.StorageIntegration)
	assert.Equal(t, 60, cfg.Warehouse.Snowflake.Timeout)
	assert.Equal(t, 1800, cfg.Warehouse.Snowflake.LoadTimeout)
	assert.Equal(t, StagingS3, cfg.Staging.Provider)
	assert.True(t, cfg.Staging.Gzip)
	assert.Equal(t, "keyring:minio", cfg.Staging.S3.SecretKey)
	assert.True(t, cfg.Load.NativeTruncate)
	assert.Equal(t, 4, cfg.Load.ChunkParallelism)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Zero(t, cfg.Server.MetadataCacheTTL)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, BackendBigQuery, cfg.Warehouse.Backend)
	assert.Equal(t, StagingGCS, cfg.Staging.Provider)
	assert.Equal(t, 500, cfg.Load.ChunkSize)
	assert.Equal(t, 1, cfg.Load.ChunkParallelism)
	assert.False(t, cfg.Load.NativeTruncate)
	assert.Equal(t, 30, cfg.Warehouse.Snowflake.Timeout)
	assert.Equal(t, 600, cfg.Warehouse.Snowflake.LoadTimeout)
	assert.Equal(t, 300, cfg.Server.MetadataCacheTTL)
}

func TestDefaultsOverlay(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, yaml.Unmarshal([]byte("load:\n  chunk_size: 10\n"), &cfg))

	assert.Equal(t, 10, cfg.Load.ChunkSize)
	assert.Equal(t, 1, cfg.Load.ChunkParallelism)
	assert.Equal(t, "info", cfg.Logging.Level)
}
