package testutil

import (
	"context"
	"fmt"
	"sync"

	"ddbridge/internal/frame"
	"ddbridge/internal/staging"
)

// StagedFrame is one frame handed to MockStager.
type StagedFrame struct {
	Bucket  string
	TableID string
	Frame   *frame.Frame
}

// MockStager records staged frames without touching storage.
type MockStager struct {
	mu sync.Mutex

	Staged []StagedFrame
	Error  error
}

// WriteFrameAsJSON records the frame and returns a gs:// URI.
func (s *MockStager) WriteFrameAsJSON(ctx context.Context, f *frame.Frame, bucket, tableID string) (staging.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Error != nil {
		return staging.Object{}, s.Error
	}
	s.Staged = append(s.Staged, StagedFrame{Bucket: bucket, TableID: tableID, Frame: f})

	objKey := fmt.Sprintf("%s/mock-%d.json", tableID, len(s.Staged))
	return staging.Object{
		URI: fmt.Sprintf("gs://%s/%s", bucket, objKey),
		Key: objKey,
	}, nil
}

var _ staging.Stager = (*MockStager)(nil)
