package classifier

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/teslashibe/go-affect/pkg/emotion"
)

func uniform(level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		f    Features
		want emotion.Label
		conf float64
	}{
		{"bright expressive smooth", Features{Brightness: 150, Contrast: 40, EdgeDensity: 0.05}, emotion.Happy, 0.8},
		{"dark contrasty", Features{Brightness: 80, Contrast: 30, EdgeDensity: 0.05}, emotion.Sad, 0.7},
		{"edgy contrasty", Features{Brightness: 105, Contrast: 40, EdgeDensity: 0.2}, emotion.Angry, 0.75},
		{"bright flat", Features{Brightness: 115, Contrast: 10, EdgeDensity: 0.02}, emotion.Surprise, 0.7},
		{"dim edgy", Features{Brightness: 105, Contrast: 20, EdgeDensity: 0.13}, emotion.Fear, 0.65},
		{"nothing matches", Features{Brightness: 105, Contrast: 20, EdgeDensity: 0.10}, emotion.Neutral, 0.6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			label, conf := Decide(tc.f)
			if label != tc.want || conf != tc.conf {
				t.Errorf("Decide(%+v) = (%s, %.2f), want (%s, %.2f)", tc.f, label, conf, tc.want, tc.conf)
			}
		})
	}
}

func TestExtract_Uniform(t *testing.T) {
	f, err := Extract(uniform(200))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if math.Abs(f.Brightness-200) > 0.5 {
		t.Errorf("Brightness: got %.2f, want 200", f.Brightness)
	}
	if f.Contrast > 0.5 {
		t.Errorf("Contrast: got %.2f, want ~0", f.Contrast)
	}
	if f.EdgeDensity != 0 {
		t.Errorf("EdgeDensity: got %.3f, want 0", f.EdgeDensity)
	}
}

func TestExtract_StepEdge(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if x >= 50 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	f, err := Extract(img)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.EdgeDensity <= 0 || f.EdgeDensity > 0.1 {
		t.Errorf("EdgeDensity: got %.3f, want a thin vertical edge", f.EdgeDensity)
	}
	if f.Contrast < 100 {
		t.Errorf("Contrast: got %.2f, want high", f.Contrast)
	}
}

func TestHeuristic_Classify(t *testing.T) {
	h := NewHeuristic()

	res, err := h.Classify(context.Background(), uniform(200))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != emotion.Surprise || res.Confidence != 0.7 {
		t.Errorf("got (%s, %.2f), want (Surprise, 0.70)", res.Label, res.Confidence)
	}

	res, _ = h.Classify(context.Background(), uniform(60))
	if res.Label != emotion.Neutral {
		t.Errorf("flat dark ROI: got %s, want Neutral", res.Label)
	}
}

func TestHeuristic_Deterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 80, 90))
	for i := range img.Pix {
		img.Pix[i] = uint8((i * 37) % 251)
	}

	h := NewHeuristic()
	first, _ := h.Classify(context.Background(), img)
	for i := 0; i < 5; i++ {
		again, _ := h.Classify(context.Background(), img)
		if again.Label != first.Label || again.Confidence != first.Confidence {
			t.Fatalf("run %d: got %+v, want %+v", i, again, first)
		}
	}
}

func TestHeuristic_EmptyROI(t *testing.T) {
	h := NewHeuristic()
	if _, err := h.Classify(context.Background(), image.NewGray(image.Rect(0, 0, 0, 0))); err != ErrEmptyROI {
		t.Errorf("expected ErrEmptyROI, got %v", err)
	}
}

func TestSoftmax(t *testing.T) {
	v := []float64{1, 2, 3, 0, 0, 0, 0}
	if isDistribution(v) {
		t.Fatal("logits are not a distribution")
	}
	softmax(v)

	var sum float64
	for _, p := range v {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("softmax sum: got %v", sum)
	}
	if argmax(v) != 2 {
		t.Errorf("argmax: got %d, want 2", argmax(v))
	}
}

func TestExtract_GentleRampHasNoEdges(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(50 + x)})
		}
	}

	f, err := Extract(img)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.EdgeDensity != 0 {
		t.Errorf("EdgeDensity: got %.3f, want 0 below the low threshold", f.EdgeDensity)
	}
}

func TestHeuristic_CheckerboardIsAngry(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if (x/5+y/5)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	f, err := Extract(img)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.EdgeDensity <= 0.15 {
		t.Fatalf("EdgeDensity: got %.3f, want > 0.15", f.EdgeDensity)
	}

	res, err := NewHeuristic().Classify(context.Background(), img)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != emotion.Angry || res.Confidence != 0.75 {
		t.Errorf("got (%s, %.2f), want (Angry, 0.75)", res.Label, res.Confidence)
	}
}
