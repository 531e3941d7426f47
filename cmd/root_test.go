package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"ddbridge/internal/config"
	"ddbridge/internal/schema"
	"ddbridge/internal/ui"
	"ddbridge/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	b := bytes.NewBufferString("")
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return b.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// resetViper drops overrides set by a test and restores the flag bindings.
func resetViper() {
	viper.Reset()
	bindFlags()
}

func TestRootCommandHelp(t *testing.T) {
	output, err := execute(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, output, "Available Commands:")
	for _, name := range []string{"create-table", "create-view", "download", "upload", "upload-chunks", "schema", "domain", "checkfield", "serve", "secret"} {
		assert.Contains(t, output, name)
	}
}

func TestInvalidCommand(t *testing.T) {
	_, err := execute(t, "invalid-command")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestVersion(t *testing.T) {
	output, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "ddbridge version dev")
}

func TestSplitTable(t *testing.T) {
	dataset, table, err := splitTable("sales.vbak")
	require.NoError(t, err)
	assert.Equal(t, "sales", dataset)
	assert.Equal(t, "vbak", table)

	for _, bad := range []string{"vbak", "a.b.c", ".vbak", "sales."} {
		_, _, err := splitTable(bad)
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument), bad)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Cleanup(resetViper)
	path := writeFile(t, "config.yaml", `
warehouse:
  backend: bigquery
  project: from-file
logging:
  level: info
`)
	viper.Set("config", path)
	viper.Set("warehouse.project", "from-flag")
	viper.Set("verbose", true)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Warehouse.Project)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sap_metadata", cfg.Warehouse.MetadataDataset)
}

func TestLoadConfig_ResolvesSecrets(t *testing.T) {
	keyring.MockInit()
	t.Cleanup(resetViper)

	ref, err := config.StoreSecret("sf", "hunter2")
	require.NoError(t, err)
	path := writeFile(t, "config.yaml", `
warehouse:
  backend: snowflake
  project: ERP
  snowflake:
    account: acme
    username: loader
    password: `+ref+`
`)
	viper.Set("config", path)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Warehouse.Snowflake.Password)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Cleanup(resetViper)
	viper.Set("config", writeFile(t, "config.yaml", "warehouse:\n  backend: bigquery\n"))

	_, err := loadConfig()
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestReadFrameFile(t *testing.T) {
	ndjson := writeFile(t, "rows.ndjson", "{\"vbeln\":\"0001\",\"netwr\":1.5}\n{\"vbeln\":\"0002\"}\n")
	f, err := readFrameFile(ndjson, []string{"vbeln", "netwr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"vbeln", "netwr"}, f.Columns)
	assert.Equal(t, 2, f.Len())

	csv := writeFile(t, "rows.csv", "vbeln,netwr\n0001,1.5\n")
	f, err = readFrameFile(csv, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"vbeln", "netwr"}, f.Columns)
	assert.Equal(t, 1, f.Len())

	_, err = readFrameFile(writeFile(t, "bad.json", "{not json"), nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
}

func TestReadSchemaFile(t *testing.T) {
	path := writeFile(t, "schema.json", `[{"name":"vbeln","type":"STRING","mode":"REQUIRED"},{"name":"payload","type":"JSON"}]`)
	cols, err := readSchemaFile(path)
	require.NoError(t, err)
	assert.Equal(t, []schema.ColumnSchema{
		{Name: "vbeln", Type: schema.TypeString, Mode: schema.ModeRequired},
		{Name: "payload", Type: schema.TypeJSON},
	}, cols)
}

func TestSecretStore(t *testing.T) {
	keyring.MockInit()
	var buf bytes.Buffer
	old := ui.Output
	ui.Output = &buf
	t.Cleanup(func() { ui.Output = old; secretValue = "" })

	_, err := execute(t, "secret", "store", "s3-secret", "--value", "abc")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "keyring:s3-secret")

	got, err := keyring.Get(config.KeyringService, "s3-secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestSecretEncrypt(t *testing.T) {
	t.Setenv(config.EnvEncryptionKey, "test-key")
	t.Cleanup(resetViper)
	var buf bytes.Buffer
	old := ui.Output
	ui.Output = &buf
	t.Cleanup(func() { ui.Output = old })

	path := writeFile(t, "config.yaml", `
warehouse:
  backend: snowflake
  snowflake:
    password: plain
`)
	_, err := execute(t, "secret", "encrypt", "--config", path)
	require.NoError(t, err)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.True(t, config.IsEncrypted(cfg.Warehouse.Snowflake.Password))
	_, err = os.Stat(path + ".backup")
	assert.NoError(t, err)
}
