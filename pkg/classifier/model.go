package classifier

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/teslashibe/go-affect/pkg/emotion"
	"gocv.io/x/gocv"
)

// Model runs a 7-class emotion network through OpenCV's DNN module.
// The network is loaded once and shared by all callers.
type Model struct {
	net       gocv.Net
	config    Config
	inputSize image.Point
	mu        sync.Mutex // gocv.Net is not goroutine-safe
}

// NewModel loads the network named by cfg.ModelPath.
func NewModel(cfg Config) (*Model, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: model file not found: %s", ErrClassifierUnavailable, cfg.ModelPath)
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load model from %s", ErrClassifierUnavailable, cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	size := cfg.InputSize
	if size <= 0 {
		size = DefaultConfig().InputSize
	}

	return &Model{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(size, size),
	}, nil
}

// Name implements Classifier.
func (m *Model) Name() string { return "model" }

// Classify implements Classifier.
func (m *Model) Classify(ctx context.Context, roi image.Image) (emotion.Result, error) {
	if roi == nil || roi.Bounds().Empty() {
		return emotion.Result{}, ErrEmptyROI
	}

	// Promote gray and paletted ROIs to 3 channels before resizing.
	mat, err := gocv.ImageToMatRGB(imaging.Clone(roi))
	if err != nil {
		return emotion.Result{}, fmt.Errorf("convert roi: %w", err)
	}
	defer mat.Close()

	// Mats are BGR; the network was trained on RGB, so swapRB.
	blob := gocv.BlobFromImage(mat, 1.0/255.0, m.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return emotion.Result{}, err
	}

	probs, err := m.forward(blob)
	if err != nil {
		return emotion.Result{}, err
	}

	best := argmax(probs)
	return emotion.Result{
		Label:         emotion.ModelOrder[best],
		Confidence:    emotion.Clamp(probs[best]),
		Probabilities: probs,
		Source:        m.Name(),
	}, nil
}

func (m *Model) forward(blob gocv.Mat) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	raw, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	if len(raw) < emotion.NumClasses {
		return nil, fmt.Errorf("%w: %d values, want %d", ErrBadOutput, len(raw), emotion.NumClasses)
	}

	probs := make([]float64, emotion.NumClasses)
	for i := range probs {
		probs[i] = float64(raw[i])
	}
	if !isDistribution(probs) {
		softmax(probs)
	}
	return probs, nil
}

// Close releases the network.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// isDistribution reports whether v already looks like softmax output.
func isDistribution(v []float64) bool {
	var sum float64
	for _, p := range v {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return false
		}
		sum += p
	}
	return math.Abs(sum-1) < 1e-3
}

func softmax(v []float64) {
	maxV := v[argmax(v)]
	var sum float64
	for i := range v {
		v[i] = math.Exp(v[i] - maxV)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

var _ Classifier = (*Model)(nil)
