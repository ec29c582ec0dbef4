package face

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNetDetector uses OpenCV's FaceDetectorYN. It finds rotated and partly
// occluded faces the Haar cascade misses, at a higher CPU cost.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the ONNX model named in cfg.ModelPath.
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	// Input size is reset per frame.
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(320, 320),
		float32(cfg.ScoreThreshold),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces in img. Candidates outside [MinSize, MaxSize] are
// dropped to match the cascade's size band.
func (d *YuNetDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(mat.Cols(), mat.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(mat, &faces)

	origin := img.Bounds().Min
	var rects []image.Rectangle
	for r := 0; r < faces.Rows(); r++ {
		// Columns 0-3 are x, y, w, h in pixels; 4-13 landmarks; 14 score.
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))

		if w < d.config.MinSize || h < d.config.MinSize {
			continue
		}
		if d.config.MaxSize > 0 && (w > d.config.MaxSize || h > d.config.MaxSize) {
			continue
		}
		rects = append(rects, image.Rect(x, y, x+w, y+h).Add(origin))
	}
	return rects, nil
}

// Close releases the detector resources.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

var _ Detector = (*YuNetDetector)(nil)
