package classifier

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-affect/pkg/emotion"
)

// FallbackConfig tunes a Fallback chain.
type FallbackConfig struct {
	// Timeout bounds each strategy. A strategy that overruns is abandoned
	// and the next one runs. Zero disables the bound.
	Timeout time.Duration

	// OnFallback is called whenever a strategy fails and the chain moves on.
	OnFallback func(strategy string, err error)

	Logger *slog.Logger
}

// Fallback tries strategies in order until one succeeds.
type Fallback struct {
	strategies []Classifier
	config     FallbackConfig
	logger     *slog.Logger
}

// NewFallback creates a strategy chain.
// At least one strategy is required.
func NewFallback(cfg FallbackConfig, strategies ...Classifier) (*Fallback, error) {
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		strategies: strategies,
		config:     cfg,
		logger:     logger.With("component", "classifier.chain"),
	}, nil
}

// SetOnFallback installs the fallback hook. Call before serving traffic.
func (c *Fallback) SetOnFallback(fn func(strategy string, err error)) {
	c.config.OnFallback = fn
}

// Classify tries each strategy until one succeeds.
func (c *Fallback) Classify(ctx context.Context, roi image.Image) (emotion.Result, error) {
	var errs []error

	for i, s := range c.strategies {
		res, err := c.run(ctx, s, roi)
		if err == nil {
			if i > 0 {
				c.logger.Debug("fallback strategy succeeded",
					"strategy", s.Name(),
					"strategy_index", i,
				)
			}
			if res.Source == "" {
				res.Source = s.Name()
			}
			return res, nil
		}

		if ctx.Err() != nil {
			return emotion.Result{}, ctx.Err()
		}

		errs = append(errs, WrapError(s.Name(), err))
		c.logger.Warn("strategy failed, trying next",
			"strategy", s.Name(),
			"strategy_index", i,
			"error", err,
		)
		if c.config.OnFallback != nil {
			c.config.OnFallback(s.Name(), err)
		}
	}

	return emotion.Result{}, &ChainError{Errors: errs}
}

type outcome struct {
	res emotion.Result
	err error
}

// run executes one strategy under the latency budget and converts panics
// into errors so one bad frame cannot take down the caller.
func (c *Fallback) run(ctx context.Context, s Classifier, roi image.Image) (emotion.Result, error) {
	if c.config.Timeout <= 0 {
		return safeClassify(ctx, s, roi)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := safeClassify(ctx, s, roi)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return emotion.Result{}, fmt.Errorf("%w after %s", ErrTimeout, c.config.Timeout)
		}
		return emotion.Result{}, ctx.Err()
	}
}

func safeClassify(ctx context.Context, s Classifier, roi image.Image) (res emotion.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrClassifierUnavailable, r)
		}
	}()
	return s.Classify(ctx, roi)
}

// Name returns the strategy names joined by "+", e.g. "model+heuristic".
func (c *Fallback) Name() string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Strategies returns the strategies in the chain.
func (c *Fallback) Strategies() []Classifier {
	return c.strategies
}

// Close closes all strategies.
func (c *Fallback) Close() error {
	var lastErr error
	for _, s := range c.strategies {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Verify Fallback implements Classifier at compile time.
var _ Classifier = (*Fallback)(nil)
