// Package service assembles the inference stack from configuration.
package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-affect/internal/config"
	"github.com/teslashibe/go-affect/pkg/classifier"
	"github.com/teslashibe/go-affect/pkg/face"
	"github.com/teslashibe/go-affect/pkg/metrics"
	"github.com/teslashibe/go-affect/pkg/pipeline"
	"github.com/teslashibe/go-affect/pkg/resolve"
	"github.com/teslashibe/go-affect/pkg/session"
)

// Service owns every long-lived component.
type Service struct {
	Registry   *session.Registry
	Classifier *classifier.Fallback
	Stream     *pipeline.Pipeline // Permissive detection for live frames
	Upload     *pipeline.Pipeline // Strict detection for single uploads
	Metrics    *metrics.Metrics

	locators []*face.Locator
	opts     options
}

type options struct {
	openDetector  func(face.Config) (face.Detector, error)
	newClassifier func(classifier.Config, *slog.Logger) *classifier.Fallback
}

// Option overrides how New builds a component.
type Option func(*options)

// WithDetectorFactory replaces face.Open.
func WithDetectorFactory(fn func(face.Config) (face.Detector, error)) Option {
	return func(o *options) { o.openDetector = fn }
}

// WithClassifierFactory replaces classifier.New.
func WithClassifierFactory(fn func(classifier.Config, *slog.Logger) *classifier.Fallback) Option {
	return func(o *options) { o.newClassifier = fn }
}

// New loads the face cascades and classifier and wires both pipelines to a
// shared registry.
func New(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{openDetector: face.Open, newClassifier: classifier.New}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Service{
		opts:     o,
		Registry: session.NewRegistry(cfg.Session, logger),
		Metrics:  m,
	}
	s.Registry.OnEvict = func(string) { m.SetSessions(s.Registry.Len()) }

	s.Classifier = o.newClassifier(cfg.Classifier, logger)
	s.Classifier.SetOnFallback(func(strategy string, err error) {
		m.Fallback(strategy)
	})

	stream, err := s.locator(cfg.Stream, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("stream detector: %w", err)
	}
	upload, err := s.locator(cfg.Upload, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("upload detector: %w", err)
	}

	popts := []pipeline.Option{
		pipeline.WithConfig(cfg.Pipeline),
		pipeline.WithResolver(resolve.New(cfg.Resolve)),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger),
	}
	s.Stream = pipeline.New(stream, s.Classifier, s.Registry, popts...)
	s.Upload = pipeline.New(upload, s.Classifier, s.Registry, popts...)

	logger.Info("inference stack ready",
		"classifier", s.Classifier.Name(),
		"cascade", cfg.Stream.CascadePath,
	)
	return s, nil
}

func (s *Service) locator(cfg face.Config, logger *slog.Logger) (*face.Locator, error) {
	d, err := s.opts.openDetector(cfg)
	if err != nil {
		return nil, err
	}
	l := face.NewLocator(d, cfg, logger)
	s.locators = append(s.locators, l)
	return l, nil
}

// Close releases native resources.
func (s *Service) Close() error {
	var errs []error
	for _, l := range s.locators {
		errs = append(errs, l.Close())
	}
	if s.Classifier != nil {
		errs = append(errs, s.Classifier.Close())
	}
	return errors.Join(errs...)
}
