// Package face locates the most prominent face in a frame and expands it
// into a region of interest for emotion classification.
package face

import (
	"fmt"
	"image"
)

// Detector backends.
const (
	BackendHaar  = "haar"
	BackendYuNet = "yunet"
)

// Detector is the interface for face detection backends.
type Detector interface {
	// Detect returns candidate face rectangles in image coordinates.
	Detect(img image.Image) ([]image.Rectangle, error)

	// Close releases resources.
	Close() error
}

// Config holds detector and ROI configuration.
type Config struct {
	Backend string `yaml:"backend"` // "haar" (default) or "yunet"

	CascadePath  string  `yaml:"cascade_path"`  // Haar cascade XML
	ScaleFactor  float64 `yaml:"scale_factor"`  // Pyramid step (default 1.1)
	MinNeighbors int     `yaml:"min_neighbors"` // Detector strictness
	MinSize      int     `yaml:"min_size"`      // Smallest face searched, px
	MaxSize      int     `yaml:"max_size"`      // Largest face searched, px (0 = unbounded)

	// YuNet DNN detector
	ModelPath      string  `yaml:"model_path"`
	ScoreThreshold float64 `yaml:"score_threshold"`

	MinEdge int     `yaml:"min_edge"` // Candidates with a shorter side are noise
	ScaleW  float64 `yaml:"scale_w"`  // Horizontal ROI expansion
	ScaleH  float64 `yaml:"scale_h"`  // Vertical ROI expansion
}

// DefaultConfig returns the streaming defaults: permissive neighbors and a
// bounded size band so faces further from the camera are still found.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendHaar,
		CascadePath:    "models/haarcascade_frontalface_default.xml",
		ScaleFactor:    1.1,
		MinNeighbors:   2,
		MinSize:        20,
		MaxSize:        300,
		ModelPath:      "models/face_detection_yunet.onnx",
		ScoreThreshold: 0.5,
		MinEdge:        20,
		ScaleW:         1.3,
		ScaleH:         1.5,
	}
}

// UploadConfig returns the stricter single-image variant.
func UploadConfig() Config {
	cfg := DefaultConfig()
	cfg.MinNeighbors = 4
	cfg.MaxSize = 0
	return cfg
}

// Open creates the detector named by cfg.Backend.
func Open(cfg Config) (Detector, error) {
	var (
		d   Detector
		err error
	)
	switch cfg.Backend {
	case "", BackendHaar:
		d, err = NewCascade(cfg)
	case BackendYuNet:
		d, err = NewYuNet(cfg)
	default:
		return nil, fmt.Errorf("face: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
