package models

// Warehouse backends.
const (
	BackendBigQuery  = "bigquery"
	BackendSnowflake = "snowflake"
)

// Staging providers.
const (
	StagingGCS   = "gcs"
	StagingS3    = "s3"
	StagingLocal = "local"
)

type Config struct {
	Warehouse Warehouse `yaml:"warehouse"`
	Staging   Staging   `yaml:"staging"`
	Load      Load      `yaml:"load"`
	Logging   Logging   `yaml:"logging"`
	Server    Server    `yaml:"server"`
}

type Warehouse struct {
	Backend string `yaml:"backend"`
	// Project is the BigQuery project, or the Snowflake database when
	// Backend is snowflake and Snowflake.Database is empty.
	Project         string    `yaml:"project"`
	Location        string    `yaml:"location"`
	CredentialsFile string    `yaml:"credentials_file"`
	MetadataDataset string    `yaml:"metadata_dataset"`
	Snowflake       Snowflake `yaml:"snowflake"`
}

type Snowflake struct {
	Account            string `yaml:"account"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Role               string `yaml:"role"`
	Warehouse          string `yaml:"warehouse"`
	Database           string `yaml:"database"`
	StorageIntegration string `yaml:"storage_integration"`
	// Timeout is the per-statement timeout in seconds.
	Timeout int `yaml:"timeout"`
	// LoadTimeout bounds a whole load transaction, COPY INTO included.
	LoadTimeout int `yaml:"load_timeout"`
}

type Staging struct {
	Provider string `yaml:"provider"`
	Bucket   string `yaml:"bucket"`
	Gzip     bool   `yaml:"gzip"`
	S3       S3     `yaml:"s3"`
	LocalDir string `yaml:"local_dir"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type Load struct {
	// NativeTruncate replaces the truncate-then-append sequence with the
	// warehouse's own truncating write disposition.
	NativeTruncate   bool `yaml:"native_truncate"`
	ChunkSize        int  `yaml:"chunk_size"`
	ChunkParallelism int  `yaml:"chunk_parallelism"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

type Server struct {
	Addr string `yaml:"addr"`
	// MetadataCacheTTL is how long, in seconds, dictionary reads are cached
	// in serve mode. Zero disables the cache.
	MetadataCacheTTL  int `yaml:"metadata_cache_ttl"`
	MetadataCacheSize int `yaml:"metadata_cache_size"`
}

// Defaults returns a configuration with every optional value filled in.
func Defaults() Config {
	return Config{
		Warehouse: Warehouse{
			Backend:         BackendBigQuery,
			MetadataDataset: "sap_metadata",
			Snowflake:       Snowflake{Timeout: 30, LoadTimeout: 600},
		},
		Staging: Staging{Provider: StagingGCS},
		Load:    Load{ChunkSize: 500, ChunkParallelism: 1},
		Logging: Logging{Level: "info", Format: "json"},
		Server:  Server{Addr: ":8080", MetadataCacheTTL: 300, MetadataCacheSize: 256},
	}
}
