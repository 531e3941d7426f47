package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ddbridge/internal/common"
	"ddbridge/internal/frame"
	"ddbridge/pkg/errors"
)

// LocalStager writes files below a directory, one subdirectory per bucket,
// and returns file:// URIs. Useful for dry runs and tests.
type LocalStager struct {
	root string
	opts Options
}

// NewLocalStager creates root when missing.
func NewLocalStager(root string, opts Options) (*LocalStager, error) {
	if root == "" {
		return nil, errors.ConfigError("local staging directory is required", "staging.local_dir")
	}
	root, err := common.CleanPath(root)
	if err != nil {
		return nil, errors.ConfigError(err.Error(), "staging.local_dir")
	}
	if err := os.MkdirAll(root, common.DirPermissionNormal); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &LocalStager{root: root, opts: opts}, nil
}

// WriteFrameAsJSON writes the frame to <root>/<bucket>/<key>.
func (s *LocalStager) WriteFrameAsJSON(ctx context.Context, f *frame.Frame, bucket, tableID string) (Object, error) {
	if bucket == "" {
		return Object{}, errors.InvalidArgument("bucket", "must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	p, err := encode(f, tableID, s.opts)
	if err != nil {
		return Object{}, err
	}

	dest, err := common.JoinPath(s.root, bucket, filepath.FromSlash(p.key))
	if err != nil {
		return Object{}, errors.InvalidArgument("bucket", err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(dest), common.DirPermissionNormal); err != nil {
		return Object{}, fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	if err := os.WriteFile(dest, p.data, common.FilePermissionSecure); err != nil {
		return Object{}, fmt.Errorf("failed to write %s: %w", dest, err)
	}

	obj := p.object("file", bucket)
	obj.URI = "file://" + filepath.ToSlash(dest)
	return obj, nil
}
