// Package capture feeds camera frames into a sink at a fixed pace.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-affect/pkg/pipeline"
)

// ErrEndOfStream is returned by a Source that has no more frames.
var ErrEndOfStream = errors.New("capture: end of stream")

// Config controls the capture device and pacing.
type Config struct {
	Source      string  `yaml:"source"` // Device index ("0") or file/stream URL
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	FPS         float64 `yaml:"fps"` // Frames handed to the sink per second
	JPEGQuality int     `yaml:"jpeg_quality"`
	MaxFailures int     `yaml:"max_failures"` // Consecutive read failures before giving up
}

// DefaultConfig returns defaults for a local webcam.
func DefaultConfig() Config {
	return Config{
		Source:      "0",
		Width:       640,
		Height:      480,
		FPS:         5,
		JPEGQuality: 85,
		MaxFailures: 10,
	}
}

// Source produces encoded frames.
type Source interface {
	Read(ctx context.Context) (pipeline.Frame, error)
	Close() error
}

// Sink consumes one frame. Errors are logged and counted; they never stop
// the loop.
type Sink func(ctx context.Context, frame pipeline.Frame) error

// Stats counts loop activity.
type Stats struct {
	Captured   int64 `json:"captured"`
	ReadErrors int64 `json:"read_errors"`
	SinkErrors int64 `json:"sink_errors"`
}

// Loop pulls frames from a Source and pushes them to a Sink.
type Loop struct {
	src         Source
	sink        Sink
	limiter     *rate.Limiter
	maxFailures int
	logger      *slog.Logger

	captured   atomic.Int64
	readErrors atomic.Int64
	sinkErrors atomic.Int64

	closeOnce sync.Once
}

// NewLoop creates a loop pacing src at cfg.FPS.
func NewLoop(src Source, sink Sink, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.FPS > 0 {
		limit = rate.Limit(cfg.FPS)
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultConfig().MaxFailures
	}
	return &Loop{
		src:         src,
		sink:        sink,
		limiter:     rate.NewLimiter(limit, 1),
		maxFailures: cfg.MaxFailures,
		logger:      logger.With("component", "capture"),
	}
}

// Run captures until ctx is canceled, the source ends, or reads fail
// MaxFailures times in a row. The source is closed on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.close()

	failures := 0
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil // canceled
		}

		frame, err := l.src.Read(ctx)
		switch {
		case errors.Is(err, ErrEndOfStream):
			l.logger.Info("source exhausted", "captured", l.captured.Load())
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			l.readErrors.Add(1)
			failures++
			l.logger.Warn("frame read failed", "error", err, "consecutive", failures)
			if failures >= l.maxFailures {
				return fmt.Errorf("capture: %d consecutive read failures: %w", failures, err)
			}
			continue
		}
		failures = 0
		l.captured.Add(1)

		if err := l.sink(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.sinkErrors.Add(1)
			l.logger.Debug("sink rejected frame", "error", err)
		}
	}
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Captured:   l.captured.Load(),
		ReadErrors: l.readErrors.Load(),
		SinkErrors: l.sinkErrors.Load(),
	}
}

func (l *Loop) close() {
	l.closeOnce.Do(func() {
		if err := l.src.Close(); err != nil {
			l.logger.Warn("close source", "error", err)
		}
	})
}

// Replay is a Source that yields fixed frames, optionally looping.
type Replay struct {
	Frames []pipeline.Frame
	Loop   bool

	mu     sync.Mutex
	next   int
	closed bool
}

// Read implements Source.
func (r *Replay) Read(ctx context.Context) (pipeline.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.Frames) == 0 {
		return pipeline.Frame{}, ErrEndOfStream
	}
	if r.next >= len(r.Frames) {
		if !r.Loop {
			return pipeline.Frame{}, ErrEndOfStream
		}
		r.next = 0
	}
	f := r.Frames[r.next]
	r.next++
	return f, nil
}

// Close implements Source.
func (r *Replay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

var _ Source = (*Replay)(nil)
