package face

import (
	"image"
	"sync"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(img image.Image) ([]image.Rectangle, error)

	mu    sync.Mutex
	calls int
}

// NewMock returns a detector that always reports the given rectangles.
func NewMock(rects ...image.Rectangle) *Mock {
	return &Mock{
		DetectFunc: func(image.Image) ([]image.Rectangle, error) {
			out := make([]image.Rectangle, len(rects))
			copy(out, rects)
			return out, nil
		},
	}
}

// Detect implements Detector.
func (m *Mock) Detect(img image.Image) ([]image.Rectangle, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.DetectFunc == nil {
		return nil, nil
	}
	return m.DetectFunc(img)
}

// Calls returns how many times Detect ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close implements Detector.
func (m *Mock) Close() error { return nil }

var _ Detector = (*Mock)(nil)
var _ Detector = (*CascadeDetector)(nil)
