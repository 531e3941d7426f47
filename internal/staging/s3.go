package staging

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ddbridge/internal/frame"
	"ddbridge/pkg/errors"
	"ddbridge/pkg/models"
)

// S3Stager stages files in any S3-compatible store and returns s3:// URIs.
type S3Stager struct {
	client *minio.Client
	opts   Options
}

// NewS3Stager creates a minio client from the s3 staging section.
func NewS3Stager(cfg models.S3, opts Options) (*S3Stager, error) {
	if cfg.Endpoint == "" {
		return nil, errors.ConfigError("s3 endpoint is required", "staging.s3.endpoint")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.ConfigError("s3 credentials are required", "staging.s3.access_key")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid s3 endpoint: %v", err), "staging.s3.endpoint")
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	useSSL := cfg.UseSSL || u.Scheme == "https"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.ConnectionError(endpoint, err)
	}
	return &S3Stager{client: client, opts: opts}, nil
}

// WriteFrameAsJSON uploads the frame as one NDJSON object.
func (s *S3Stager) WriteFrameAsJSON(ctx context.Context, f *frame.Frame, bucket, tableID string) (Object, error) {
	if bucket == "" {
		return Object{}, errors.InvalidArgument("bucket", "must not be empty")
	}
	p, err := encode(f, tableID, s.opts)
	if err != nil {
		return Object{}, err
	}

	_, err = s.client.PutObject(ctx, bucket, p.key, bytes.NewReader(p.data), int64(len(p.data)), minio.PutObjectOptions{
		ContentType: p.contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to write s3://%s/%s: %w", bucket, p.key, err)
	}
	return p.object("s3", bucket), nil
}
