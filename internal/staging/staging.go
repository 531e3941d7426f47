// Package staging writes frames to object storage so the warehouse can load
// them from a URI.
package staging

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/xxh3"

	"ddbridge/internal/frame"
	"ddbridge/pkg/errors"
	"ddbridge/pkg/models"
)

// Object describes one staged file.
type Object struct {
	URI      string
	Key      string
	Bytes    int64
	Checksum string
}

// Stager writes a frame as newline-delimited JSON and returns where it
// landed.
type Stager interface {
	WriteFrameAsJSON(ctx context.Context, f *frame.Frame, bucket, tableID string) (Object, error)
}

// Options control the encoding of staged files.
type Options struct {
	Gzip bool
}

// payload is an encoded frame ready for upload.
type payload struct {
	data        []byte
	key         string
	checksum    string
	contentType string
}

func encode(f *frame.Frame, tableID string, opts Options) (*payload, error) {
	if tableID == "" {
		return nil, errors.InvalidArgument("tableID", "must not be empty")
	}

	var raw bytes.Buffer
	if err := f.WriteNDJSON(&raw); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	data := raw.Bytes()
	ext := ".json"
	contentType := "application/x-ndjson"
	if opts.Gzip {
		var zipped bytes.Buffer
		zw := gzip.NewWriter(&zipped)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("failed to compress frame: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress frame: %w", err)
		}
		data = zipped.Bytes()
		ext = ".json.gz"
		contentType = "application/gzip"
	}

	sum := fmt.Sprintf("%016x", xxh3.Hash(data))
	key := path.Join(strings.Trim(tableID, "/"), sum+"-"+uuid.NewString()+ext)

	return &payload{data: data, key: key, checksum: sum, contentType: contentType}, nil
}

func (p *payload) object(scheme, bucket string) Object {
	return Object{
		URI:      fmt.Sprintf("%s://%s/%s", scheme, bucket, p.key),
		Key:      p.key,
		Bytes:    int64(len(p.data)),
		Checksum: p.checksum,
	}
}

// New builds the stager selected by the staging configuration.
func New(ctx context.Context, cfg models.Staging) (Stager, error) {
	opts := Options{Gzip: cfg.Gzip}
	switch cfg.Provider {
	case models.StagingGCS, "":
		return NewGCSStager(ctx, opts)
	case models.StagingS3:
		return NewS3Stager(cfg.S3, opts)
	case models.StagingLocal:
		return NewLocalStager(cfg.LocalDir, opts)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown staging provider %q", cfg.Provider), "staging.provider")
	}
}
