package classifier

import (
	"context"
	"image"
	"sync"

	"github.com/teslashibe/go-affect/pkg/emotion"
)

// Mock implements Classifier for testing.
type Mock struct {
	// ClassifyFunc is called when Classify is invoked.
	ClassifyFunc func(ctx context.Context, roi image.Image) (emotion.Result, error)

	// NameOverride replaces the default "mock" name.
	NameOverride string

	mu     sync.Mutex
	calls  int
	closed bool
}

// NewMock returns a classifier that always reports res.
func NewMock(res emotion.Result) *Mock {
	return &Mock{
		ClassifyFunc: func(context.Context, image.Image) (emotion.Result, error) {
			return res, nil
		},
	}
}

// WithError returns a classifier that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		ClassifyFunc: func(context.Context, image.Image) (emotion.Result, error) {
			return emotion.Result{}, err
		},
	}
}

// Classify implements Classifier.
func (m *Mock) Classify(ctx context.Context, roi image.Image) (emotion.Result, error) {
	m.mu.Lock()
	m.calls++
	fn := m.ClassifyFunc
	m.mu.Unlock()

	if fn == nil {
		return emotion.Result{Label: emotion.Neutral, Confidence: 0.5}, nil
	}
	return fn(ctx, roi)
}

// Name implements Classifier.
func (m *Mock) Name() string {
	if m.NameOverride != "" {
		return m.NameOverride
	}
	return "mock"
}

// Calls returns the number of Classify invocations.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close implements Classifier.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ Classifier = (*Mock)(nil)
