// Package classifier maps a face region of interest to an emotion label.
//
// Two strategies implement Classifier: Model runs a 7-class network through
// OpenCV's DNN module, and Heuristic derives a label from brightness,
// contrast and edge density. Fallback chains them so a broken or slow model
// degrades to the heuristic for that call only.
package classifier

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/teslashibe/go-affect/pkg/emotion"
)

// Classifier turns an ROI into an emotion result.
type Classifier interface {
	// Classify labels the face in roi. Implementations must be safe for
	// concurrent use.
	Classify(ctx context.Context, roi image.Image) (emotion.Result, error)

	// Name identifies the strategy in logs and replies.
	Name() string

	// Close releases resources.
	Close() error
}

// Config selects and tunes the classifier strategies.
type Config struct {
	ModelPath string        `yaml:"model_path"` // ONNX/TF model; empty disables the learned model
	InputSize int           `yaml:"input_size"` // Square model input edge
	Timeout   time.Duration `yaml:"timeout"`    // Per-strategy latency budget (0 = none)
}

// DefaultConfig returns production defaults for the MobileNetV2 emotion model.
func DefaultConfig() Config {
	return Config{
		ModelPath: "models/emotion_mobilenet_v2.onnx",
		InputSize: 224,
		Timeout:   2 * time.Second,
	}
}

// New builds the classifier once at startup. When the learned model loads
// the result is a Model→Heuristic chain; otherwise the heuristic runs alone
// and the failure is logged, not returned.
func New(cfg Config, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}

	heuristic := NewHeuristic()
	if cfg.ModelPath == "" {
		logger.Warn("no emotion model configured, using heuristic classifier")
		chain, _ := NewFallback(FallbackConfig{Timeout: cfg.Timeout, Logger: logger}, heuristic)
		return chain
	}

	model, err := NewModel(cfg)
	if err != nil {
		logger.Warn("emotion model unavailable, using heuristic classifier",
			"path", cfg.ModelPath,
			"error", err,
			"unavailable", errors.Is(err, ErrClassifierUnavailable),
		)
		chain, _ := NewFallback(FallbackConfig{Timeout: cfg.Timeout, Logger: logger}, heuristic)
		return chain
	}

	logger.Info("emotion model loaded", "path", cfg.ModelPath, "input", cfg.InputSize)
	chain, _ := NewFallback(FallbackConfig{Timeout: cfg.Timeout, Logger: logger}, model, heuristic)
	return chain
}
