package capture

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-affect/pkg/pipeline"
)

// Webcam reads frames from an OpenCV video source and JPEG-encodes them.
type Webcam struct {
	mu      sync.Mutex
	cap     *gocv.VideoCapture
	mat     gocv.Mat
	source  string
	quality int
	isFile  bool
}

// OpenWebcam opens cfg.Source: a device index or a file/stream URL.
func OpenWebcam(cfg Config) (*Webcam, error) {
	var (
		vc     *gocv.VideoCapture
		err    error
		isFile bool
	)
	if idx, convErr := strconv.Atoi(cfg.Source); convErr == nil {
		vc, err = gocv.OpenVideoCapture(idx)
	} else {
		vc, err = gocv.OpenVideoCapture(cfg.Source)
		isFile = true
	}
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", cfg.Source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture: source not opened: %s", cfg.Source)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = DefaultConfig().JPEGQuality
	}

	return &Webcam{
		cap:     vc,
		mat:     gocv.NewMat(),
		source:  cfg.Source,
		quality: quality,
		isFile:  isFile,
	}, nil
}

// Read implements Source.
func (w *Webcam) Read(context.Context) (pipeline.Frame, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cap == nil {
		return pipeline.Frame{}, ErrEndOfStream
	}
	if ok := w.cap.Read(&w.mat); !ok || w.mat.Empty() {
		if w.isFile {
			return pipeline.Frame{}, ErrEndOfStream
		}
		return pipeline.Frame{}, fmt.Errorf("capture: empty frame from %s", w.source)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, w.mat, []int{int(gocv.IMWriteJpegQuality), w.quality})
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("capture: encode jpeg: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return pipeline.Frame{Data: data, Format: "jpeg"}, nil
}

// Close implements Source.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap == nil {
		return nil
	}
	w.mat.Close()
	err := w.cap.Close()
	w.cap = nil
	return err
}

var _ Source = (*Webcam)(nil)
