// Package pipeline turns raw frames into stabilized per-session emotions.
//
// Every transport (HTTP upload, WebSocket stream, capture loop) calls
// Pipeline.Detect. A call moves through locate → classify → resolve →
// stabilize, short-circuiting to NoFace when no face survives the size
// filter. Failures never escape as panics and never touch other sessions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-affect/pkg/classifier"
	"github.com/teslashibe/go-affect/pkg/emotion"
	"github.com/teslashibe/go-affect/pkg/face"
	"github.com/teslashibe/go-affect/pkg/metrics"
	"github.com/teslashibe/go-affect/pkg/resolve"
	"github.com/teslashibe/go-affect/pkg/session"
)

// Config holds pipeline-level parameters.
type Config struct {
	// FailureConfidence is reported when a frame could not be analyzed.
	FailureConfidence float64 `yaml:"failure_confidence"`

	// Window and MinVotes configure smoothing.
	Window   int `yaml:"window"`
	MinVotes int `yaml:"min_votes"`

	// MaxPixels rejects frames whose header declares more pixels (0 = no limit).
	MaxPixels int `yaml:"max_pixels"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FailureConfidence: 0.5,
		Window:            10,
		MinVotes:          3,
		MaxPixels:         DefaultMaxPixels,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig sets pipeline parameters.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.config = cfg
		p.smoother = session.Smoother{Window: cfg.Window, MinVotes: cfg.MinVotes}
	}
}

// WithResolver replaces the default resolver.
func WithResolver(r *resolve.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	locator    *face.Locator
	classifier classifier.Classifier
	resolver   *resolve.Resolver
	smoother   session.Smoother
	registry   *session.Registry
	metrics    *metrics.Metrics
	config     Config
	logger     *slog.Logger
	now        func() time.Time

	observersMu sync.RWMutex
	observers   []func(Reading)
}

// New wires a pipeline from its stages.
func New(locator *face.Locator, clf classifier.Classifier, registry *session.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		locator:    locator,
		classifier: clf,
		registry:   registry,
		resolver:   resolve.New(resolve.DefaultConfig()),
		config:     DefaultConfig(),
		smoother:   session.DefaultSmoother(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Registry returns the session registry the pipeline writes to.
func (p *Pipeline) Registry() *session.Registry {
	return p.registry
}

// ClassifierName identifies the active classifier strategy chain.
func (p *Pipeline) ClassifierName() string {
	return p.classifier.Name()
}

// OnReading registers fn to receive every reading after it is produced.
// fn runs on the caller's goroutine and must not block.
func (p *Pipeline) OnReading(fn func(Reading)) {
	p.observersMu.Lock()
	defer p.observersMu.Unlock()
	p.observers = append(p.observers, fn)
}

// DetectBase64 is Detect for base64 or data-URL payloads.
func (p *Pipeline) DetectBase64(ctx context.Context, sessionID, b64 string) (Reading, error) {
	frame, err := FrameFromBase64(b64)
	if err != nil {
		frame = Frame{err: err}
	}
	return p.Detect(ctx, sessionID, frame)
}

// Detect runs one frame through the pipeline for sessionID. The returned
// Reading is always usable: on failure it carries the session's prior
// stabilized label (or Neutral) and the error explains why.
func (p *Pipeline) Detect(ctx context.Context, sessionID string, frame Frame) (Reading, error) {
	start := p.now()

	// Receipt order is fixed here, before any CPU work.
	sess, ticket, err := p.registry.Reserve(sessionID)
	if err != nil {
		return p.finish(start, Reading{
			SessionID:  sessionID,
			Emotion:    emotion.Neutral,
			Confidence: p.config.FailureConfidence,
			Outcome:    OutcomeFailed,
		}), err
	}
	defer ticket.Release()
	p.metrics.SetSessions(p.registry.Len())

	prior := func(outcome Outcome, confidence float64) Reading {
		cur, _ := sess.Current()
		return Reading{
			SessionID:  sessionID,
			Emotion:    cur,
			Confidence: confidence,
			Outcome:    outcome,
		}
	}

	if sess.Closed() {
		_, conf := sess.Current()
		return p.finish(start, prior(OutcomeClosed, conf)), nil
	}

	img, err := frame.DecodeLimit(p.config.MaxPixels)
	if err != nil {
		p.logger.Warn("frame decode failed", "session_id", sessionID, "bytes", len(frame.Data), "error", err)
		return p.finish(start, prior(OutcomeDecodeError, p.config.FailureConfidence)), err
	}

	loc, found, err := p.locator.Locate(img)
	if err != nil {
		p.logger.Warn("face detection failed", "session_id", sessionID, "error", err)
		return p.finish(start, prior(OutcomeFailed, p.config.FailureConfidence)), err
	}

	if !found {
		st, err := ticket.Commit(p.now(), func(st *session.State) {
			st.NoFaceFrames++
			p.smoother.Update(st, emotion.Result{Label: emotion.NoFace})
		})
		r := Reading{
			SessionID:  sessionID,
			Emotion:    st.Current,
			Confidence: st.LastConfidence,
			Instant:    emotion.NoFace,
			Outcome:    OutcomeNoFace,
		}
		if errors.Is(err, session.ErrClosed) {
			r.Outcome = OutcomeClosed
		}
		return p.finish(start, r), nil
	}

	raw, err := p.classifier.Classify(ctx, face.Crop(img, loc.ROI))
	if err != nil {
		if ctx.Err() != nil {
			return p.finish(start, prior(OutcomeAbandoned, p.config.FailureConfidence)), ctx.Err()
		}
		p.logger.Error("all classifier strategies failed", "session_id", sessionID, "error", err)
		return p.finish(start, Reading{
			SessionID:  sessionID,
			Emotion:    emotion.Neutral,
			Confidence: p.config.FailureConfidence,
			Outcome:    OutcomeFailed,
			FaceFound:  true,
		}), err
	}

	resolved := p.resolver.Resolve(raw)

	// A caller that went away commits nothing.
	if ctx.Err() != nil {
		return p.finish(start, prior(OutcomeAbandoned, resolved.Confidence)), ctx.Err()
	}

	st, err := ticket.Commit(p.now(), func(st *session.State) {
		st.Frames++
		p.smoother.Update(st, resolved)
	})

	roi := loc.ROI
	r := Reading{
		SessionID:  sessionID,
		Emotion:    st.Current,
		Confidence: resolved.Confidence,
		Instant:    resolved.Label,
		Outcome:    OutcomeStabilized,
		FaceFound:  true,
		ROI:        &roi,
		Classifier: resolved.Source,
	}
	if errors.Is(err, session.ErrClosed) {
		r.Outcome = OutcomeClosed
		r.Confidence = st.LastConfidence
	} else {
		p.metrics.ObserveEmotion(string(st.Current))
	}

	p.logger.Debug("emotion stabilized",
		"session_id", sessionID,
		"instant", resolved.Label,
		"confidence", resolved.Confidence,
		"current", st.Current,
		"classifier", resolved.Source,
	)
	return p.finish(start, r), nil
}

func (p *Pipeline) finish(start time.Time, r Reading) Reading {
	now := p.now()
	r.Duration = now.Sub(start)
	r.At = now
	p.metrics.ObserveInference(string(r.Outcome), r.Duration)

	p.observersMu.RLock()
	observers := p.observers
	p.observersMu.RUnlock()
	for _, fn := range observers {
		fn(r)
	}
	return r
}

// Analyze runs detection and classification on frame without touching any
// session.
func (p *Pipeline) Analyze(ctx context.Context, frame Frame) (Analysis, error) {
	img, err := frame.DecodeLimit(p.config.MaxPixels)
	if err != nil {
		return Analysis{}, err
	}

	b := img.Bounds()
	a := Analysis{Width: b.Dx(), Height: b.Dy()}

	loc, found, err := p.locator.Locate(img)
	if err != nil {
		return a, fmt.Errorf("locate: %w", err)
	}
	a.Candidates = loc.Candidates
	if !found {
		a.Raw = emotion.Result{Label: emotion.NoFace}
		a.Resolved = a.Raw
		return a, nil
	}

	a.FaceFound = true
	faceRect, roiRect := loc.Face, loc.ROI
	a.Face, a.ROI = &faceRect, &roiRect

	roi := face.Crop(img, loc.ROI)
	if features, err := classifier.Extract(roi); err == nil {
		a.Features = &features
	} else {
		p.logger.Debug("feature extraction failed", "error", err)
	}

	raw, err := p.classifier.Classify(ctx, roi)
	if err != nil {
		return a, fmt.Errorf("classify: %w", err)
	}
	a.Raw = raw
	a.Resolved = p.resolver.Resolve(raw)
	return a, nil
}
