package classifier

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/teslashibe/go-affect/pkg/emotion"
	"gocv.io/x/gocv"
)

const (
	heuristicSize = 100 // ROI is normalized to heuristicSize x heuristicSize
	cannyLow      = 50
	cannyHigh     = 150
)

// Features are the image statistics the heuristic decides on.
type Features struct {
	Brightness  float64 `json:"brightness"`   // Mean gray level, 0-255
	Contrast    float64 `json:"contrast"`     // Gray level standard deviation
	EdgeDensity float64 `json:"edge_density"` // Fraction of edge pixels, 0-1
}

// rule is one row of the heuristic decision table.
type rule struct {
	match      func(f Features) bool
	label      emotion.Label
	confidence float64
}

// rules are evaluated in order; confidences are fixed per rule.
var rules = []rule{
	{func(f Features) bool { return f.Brightness > 120 && f.Contrast > 30 && f.EdgeDensity < 0.10 }, emotion.Happy, 0.8},
	{func(f Features) bool { return f.Brightness < 100 && f.Contrast > 25 }, emotion.Sad, 0.7},
	{func(f Features) bool { return f.EdgeDensity > 0.15 && f.Contrast > 35 }, emotion.Angry, 0.75},
	{func(f Features) bool { return f.Brightness > 110 && f.EdgeDensity < 0.08 }, emotion.Surprise, 0.7},
	{func(f Features) bool { return f.Brightness < 110 && f.EdgeDensity > 0.12 }, emotion.Fear, 0.65},
}

const defaultConfidence = 0.6

// Heuristic classifies from brightness, contrast and edge density. It needs
// no model and is deterministic for a given ROI.
type Heuristic struct{}

// NewHeuristic creates the heuristic strategy.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Name implements Classifier.
func (h *Heuristic) Name() string { return "heuristic" }

// Close implements Classifier.
func (h *Heuristic) Close() error { return nil }

// Classify implements Classifier.
func (h *Heuristic) Classify(_ context.Context, roi image.Image) (emotion.Result, error) {
	if roi == nil || roi.Bounds().Empty() {
		return emotion.Result{}, ErrEmptyROI
	}
	f, err := Extract(roi)
	if err != nil {
		return emotion.Result{}, err
	}
	label, conf := Decide(f)
	return emotion.Result{Label: label, Confidence: conf, Source: h.Name()}, nil
}

// Decide applies the decision table to f.
func Decide(f Features) (emotion.Label, float64) {
	for _, r := range rules {
		if r.match(f) {
			return r.label, r.confidence
		}
	}
	return emotion.Neutral, defaultConfidence
}

// Extract computes Features from the grayscale ROI resized to
// heuristicSize x heuristicSize.
func Extract(roi image.Image) (Features, error) {
	mat, err := gocv.ImageToMatRGB(imaging.Clone(roi))
	if err != nil {
		return Features{}, fmt.Errorf("convert roi: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return Features{}, ErrEmptyROI
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, image.Pt(heuristicSize, heuristicSize), 0, 0, gocv.InterpolationLinear)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(resized, &mean, &stddev)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(resized, &edges, cannyLow, cannyHigh)

	return Features{
		Brightness:  mean.GetDoubleAt(0, 0),
		Contrast:    stddev.GetDoubleAt(0, 0),
		EdgeDensity: float64(gocv.CountNonZero(edges)) / float64(heuristicSize*heuristicSize),
	}, nil
}

var _ Classifier = (*Heuristic)(nil)
