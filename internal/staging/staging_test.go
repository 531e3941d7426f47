package staging

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddbridge/internal/frame"
	"ddbridge/pkg/errors"
	"ddbridge/pkg/models"
)

func sampleFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New("vbeln", "payload")
	require.NoError(t, f.Append("0001", map[string]any{"k": 1}))
	require.NoError(t, f.Append("0002", nil))
	return f
}

func TestLocalStager_WritesNDJSON(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStager(root, Options{})
	require.NoError(t, err)

	obj, err := s.WriteFrameAsJSON(context.Background(), sampleFrame(t), "hoarder", "vbak")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^vbak/[0-9a-f]{16}-[0-9a-f-]{36}\.json$`), obj.Key)
	assert.True(t, strings.HasPrefix(obj.URI, "file://"))
	assert.Len(t, obj.Checksum, 16)

	data, err := os.ReadFile(filepath.Join(root, "hoarder", filepath.FromSlash(obj.Key)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), obj.Bytes)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"vbeln":"0001","payload":{"k":1}}`, lines[0])
	assert.JSONEq(t, `{"vbeln":"0002","payload":null}`, lines[1])
}

func TestLocalStager_Gzip(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStager(root, Options{Gzip: true})
	require.NoError(t, err)

	obj, err := s.WriteFrameAsJSON(context.Background(), sampleFrame(t), "hoarder", "vbak")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(obj.Key, ".json.gz"))

	data, err := os.ReadFile(filepath.Join(root, "hoarder", filepath.FromSlash(obj.Key)))
	require.NoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)

	back, err := frame.ReadNDJSON(bytes.NewReader(plain), []string{"vbeln", "payload"})
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())
}

func TestLocalStager_UniqueKeys(t *testing.T) {
	s, err := NewLocalStager(t.TempDir(), Options{})
	require.NoError(t, err)

	a, err := s.WriteFrameAsJSON(context.Background(), sampleFrame(t), "b", "vbak")
	require.NoError(t, err)
	b, err := s.WriteFrameAsJSON(context.Background(), sampleFrame(t), "b", "vbak")
	require.NoError(t, err)

	assert.Equal(t, a.Checksum, b.Checksum)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestLocalStager_InvalidInput(t *testing.T) {
	s, err := NewLocalStager(t.TempDir(), Options{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.WriteFrameAsJSON(ctx, sampleFrame(t), "", "vbak")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))

	_, err = s.WriteFrameAsJSON(ctx, sampleFrame(t), "b", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))

	_, err = s.WriteFrameAsJSON(ctx, sampleFrame(t), "..", "vbak")
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.WriteFrameAsJSON(cancelled, sampleFrame(t), "b", "vbak")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewS3Stager_Validation(t *testing.T) {
	_, err := NewS3Stager(models.S3{}, Options{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))

	_, err = NewS3Stager(models.S3{Endpoint: "http://localhost:9000"}, Options{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))

	s, err := NewS3Stager(models.S3{Endpoint: "https://minio.local:9000", AccessKey: "ak", SecretKey: "sk"}, Options{})
	require.NoError(t, err)
	assert.NotNil(t, s.client)
}

func TestNew_Provider(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, models.Staging{Provider: models.StagingLocal, LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStager{}, s)

	_, err = New(ctx, models.Staging{Provider: "ftp"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}
