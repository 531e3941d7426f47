package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"ddbridge/internal/frame"
	"ddbridge/pkg/errors"
)

// GCSStager stages files in Cloud Storage and returns gs:// URIs.
type GCSStager struct {
	client *storage.Client
	opts   Options
}

// NewGCSStager creates a Cloud Storage client with application default
// credentials unless client options say otherwise.
func NewGCSStager(ctx context.Context, opts Options, clientOpts ...option.ClientOption) (*GCSStager, error) {
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.ConnectionError("storage.googleapis.com", err)
	}
	return &GCSStager{client: client, opts: opts}, nil
}

// WriteFrameAsJSON uploads the frame as one NDJSON object.
func (s *GCSStager) WriteFrameAsJSON(ctx context.Context, f *frame.Frame, bucket, tableID string) (Object, error) {
	if bucket == "" {
		return Object{}, errors.InvalidArgument("bucket", "must not be empty")
	}
	p, err := encode(f, tableID, s.opts)
	if err != nil {
		return Object{}, err
	}

	w := s.client.Bucket(bucket).Object(p.key).NewWriter(ctx)
	w.ContentType = p.contentType
	if _, err := io.Copy(w, bytes.NewReader(p.data)); err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("failed to write gs://%s/%s: %w", bucket, p.key, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("failed to finalize gs://%s/%s: %w", bucket, p.key, err)
	}

	return p.object("gs", bucket), nil
}

// Close releases the storage client.
func (s *GCSStager) Close() error {
	return s.client.Close()
}
