package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := CleanPath("~/.ddbridge/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ddbridge", "config.yaml"), got)

	_, err = CleanPath("../etc/passwd")
	assert.Error(t, err)

	got, err = CleanPath("relative/file")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestJoinPath(t *testing.T) {
	base := t.TempDir()

	got, err := JoinPath(base, "bucket", "vbak/abc.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "bucket", "vbak", "abc.json"), got)

	_, err = JoinPath(base, "..", "escape")
	assert.Error(t, err)
}

func TestValidatePath_SiblingPrefix(t *testing.T) {
	base := t.TempDir()
	_, err := ValidatePath(base+"-other/file", base)
	assert.Error(t, err)
}
