package face

import (
	"fmt"
	"image"
	"log/slog"
)

// Locator picks the most prominent face and turns it into an ROI.
type Locator struct {
	detector Detector
	config   Config
	logger   *slog.Logger
}

// NewLocator creates a locator over the given detector.
func NewLocator(d Detector, cfg Config, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		detector: d,
		config:   cfg,
		logger:   logger.With("component", "face.locator"),
	}
}

// Location is the outcome of a successful locate.
type Location struct {
	Face       Rect `json:"face"`       // Selected detector box
	ROI        Rect `json:"roi"`        // Expanded and clamped region
	Candidates int  `json:"candidates"` // Boxes returned by the detector
}

// Locate finds the largest face in img. ok is false when no candidate
// survives the size filter; that is a normal outcome, not an error.
func (l *Locator) Locate(img image.Image) (loc Location, ok bool, err error) {
	rects, err := l.detector.Detect(img)
	if err != nil {
		return Location{}, false, fmt.Errorf("detect faces: %w", err)
	}

	bounds := img.Bounds()
	best, found := SelectLargest(rects, bounds.Min, l.config.MinEdge)
	if !found {
		l.logger.Debug("no face", "candidates", len(rects))
		return Location{Candidates: len(rects)}, false, nil
	}

	roi := best.Expand(l.config.ScaleW, l.config.ScaleH, bounds.Dx(), bounds.Dy())
	if roi.Empty() {
		return Location{Candidates: len(rects)}, false, nil
	}

	return Location{Face: best, ROI: roi, Candidates: len(rects)}, true, nil
}

// Close releases the underlying detector.
func (l *Locator) Close() error {
	return l.detector.Close()
}

// SelectLargest returns the maximum-area rectangle whose sides are both at
// least minEdge. Ties keep the first one found.
func SelectLargest(rects []image.Rectangle, origin image.Point, minEdge int) (Rect, bool) {
	var best Rect
	found := false
	for _, r := range rects {
		c := FromRectangle(r, origin)
		if c.W < minEdge || c.H < minEdge {
			continue
		}
		if !found || c.Area() > best.Area() {
			best = c
			found = true
		}
	}
	return best, found
}
