// Package config loads and validates the ddbridge configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ddbridge/internal/common"
	"ddbridge/pkg/errors"
	"ddbridge/pkg/models"
)

// EnvConfigFile overrides the configuration file location.
const EnvConfigFile = "DDBRIDGE_CONFIG"

func GetConfigPath() string {
	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		return filepath.Dir(configFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ddbridge")
}

func GetConfigFile() string {
	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Load reads the default configuration file. A missing file yields the
// defaults.
func Load() (*models.Config, error) {
	return LoadFile(GetConfigFile())
}

// LoadFile reads path over models.Defaults. Values are not validated and
// secrets are not resolved.
func LoadFile(path string) (*models.Config, error) {
	config := models.Defaults()

	cleanedPath, err := common.CleanPath(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid config file path")
	}

	data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
	if os.IsNotExist(err) {
		return &config, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigNotFound, "failed to read config file").
			WithContext("path", cleanedPath)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to unmarshal config").
			WithContext("path", cleanedPath)
	}
	return &config, nil
}

func Save(config *models.Config) error {
	return SaveFile(config, GetConfigFile())
}

// SaveFile writes config to path, creating its directory if needed.
func SaveFile(config *models.Config, path string) error {
	cleanedPath, err := common.CleanPath(path)
	if err != nil {
		return errors.ConfigError(err.Error(), "config")
	}
	if err := os.MkdirAll(filepath.Dir(cleanedPath), common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cleanedPath, data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}

// Validate checks enums and the fields each selected backend and staging
// provider needs.
func Validate(config *models.Config) error {
	wh := config.Warehouse
	switch strings.ToLower(wh.Backend) {
	case models.BackendBigQuery:
		if wh.Project == "" {
			return errors.ConfigError("project is required for the bigquery backend", "warehouse.project")
		}
	case models.BackendSnowflake:
		sf := wh.Snowflake
		if sf.Account == "" {
			return errors.ConfigError("account is required for the snowflake backend", "warehouse.snowflake.account")
		}
		if sf.Username == "" {
			return errors.ConfigError("username is required for the snowflake backend", "warehouse.snowflake.username")
		}
		if sf.Database == "" && wh.Project == "" {
			return errors.ConfigError("database or project is required for the snowflake backend", "warehouse.snowflake.database")
		}
		if sf.Timeout < 0 {
			return errors.ConfigError("timeout must not be negative", "warehouse.snowflake.timeout")
		}
		if sf.LoadTimeout < 0 {
			return errors.ConfigError("load timeout must not be negative", "warehouse.snowflake.load_timeout")
		}
	default:
		return errors.ConfigError(fmt.Sprintf("unknown backend %q", wh.Backend), "warehouse.backend")
	}

	if wh.MetadataDataset == "" {
		return errors.ConfigError("metadata dataset is required", "warehouse.metadata_dataset")
	}

	switch strings.ToLower(config.Staging.Provider) {
	case models.StagingGCS, "":
	case models.StagingS3:
		if config.Staging.S3.Endpoint == "" {
			return errors.ConfigError("endpoint is required for s3 staging", "staging.s3.endpoint")
		}
	case models.StagingLocal:
		if config.Staging.LocalDir == "" {
			return errors.ConfigError("local_dir is required for local staging", "staging.local_dir")
		}
	default:
		return errors.ConfigError(fmt.Sprintf("unknown staging provider %q", config.Staging.Provider), "staging.provider")
	}

	if config.Load.ChunkSize <= 0 {
		return errors.ConfigError("chunk_size must be positive", "load.chunk_size")
	}
	if config.Load.ChunkParallelism < 1 {
		return errors.ConfigError("chunk_parallelism must be at least 1", "load.chunk_parallelism")
	}

	switch strings.ToLower(config.Logging.Format) {
	case "", "json", "text":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown log format %q", config.Logging.Format), "logging.format")
	}
	return nil
}
