package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strings"
	"testing"

	"github.com/teslashibe/go-affect/internal/config"
	"github.com/teslashibe/go-affect/pkg/classifier"
	"github.com/teslashibe/go-affect/pkg/emotion"
	"github.com/teslashibe/go-affect/pkg/face"
	"github.com/teslashibe/go-affect/pkg/metrics"
	"github.com/teslashibe/go-affect/pkg/pipeline"
)

func testFrame(t *testing.T) pipeline.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(0, 0, color.RGBA{A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return pipeline.Frame{Data: buf.Bytes(), Format: "png"}
}

func mockDetectors(opened *[]face.Config) Option {
	return WithDetectorFactory(func(cfg face.Config) (face.Detector, error) {
		*opened = append(*opened, cfg)
		return face.NewMock(image.Rect(40, 40, 140, 140)), nil
	})
}

// brokenModelChain fails its first strategy on every call.
func brokenModelChain(cfg classifier.Config, logger *slog.Logger) *classifier.Fallback {
	model := classifier.WithError(errors.New("model crashed"))
	model.NameOverride = "model"
	chain, _ := classifier.NewFallback(
		classifier.FallbackConfig{Timeout: cfg.Timeout, Logger: logger},
		model,
		classifier.NewMock(emotion.Result{Label: emotion.Happy, Confidence: 0.9}),
	)
	return chain
}

// counterValue sums a counter family's samples carrying label=value.
func counterValue(t *testing.T, m *metrics.Metrics, suffix, label, value string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), suffix) {
			continue
		}
		for _, sample := range mf.GetMetric() {
			for _, lp := range sample.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					total += sample.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestNew_PipelinesShareRegistry(t *testing.T) {
	var opened []face.Config
	m := metrics.New()
	svc, err := New(config.Default(), m, nil, mockDetectors(&opened), WithClassifierFactory(brokenModelChain))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	if svc.Stream.Registry() != svc.Registry || svc.Upload.Registry() != svc.Registry {
		t.Fatal("pipelines must write to the service registry")
	}

	ctx := context.Background()
	frame := testFrame(t)
	if _, err := svc.Stream.Detect(ctx, "shared", frame); err != nil {
		t.Fatalf("stream detect: %v", err)
	}
	if _, err := svc.Upload.Detect(ctx, "shared", frame); err != nil {
		t.Fatalf("upload detect: %v", err)
	}

	st, err := svc.Registry.History("shared")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if st.Frames != 2 || len(st.History) != 2 {
		t.Errorf("both pipelines should feed one session: frames=%d history=%v", st.Frames, st.History)
	}
	if svc.Registry.Len() != 1 {
		t.Errorf("sessions: got %d, want 1", svc.Registry.Len())
	}
}

func TestNew_DetectorConfigs(t *testing.T) {
	var opened []face.Config
	cfg := config.Default()
	svc, err := New(cfg, metrics.New(), nil, mockDetectors(&opened), WithClassifierFactory(brokenModelChain))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	if len(opened) != 2 {
		t.Fatalf("detectors opened: got %d, want 2", len(opened))
	}
	if opened[0].MinNeighbors != cfg.Stream.MinNeighbors || opened[1].MinNeighbors != cfg.Upload.MinNeighbors {
		t.Errorf("min neighbors: got stream=%d upload=%d", opened[0].MinNeighbors, opened[1].MinNeighbors)
	}
}

func TestNew_FallbackHookRecordsMetric(t *testing.T) {
	var opened []face.Config
	m := metrics.New()
	svc, err := New(config.Default(), m, nil, mockDetectors(&opened), WithClassifierFactory(brokenModelChain))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	r, err := svc.Stream.Detect(context.Background(), "s", testFrame(t))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if r.Classifier != "mock" {
		t.Errorf("classifier: got %q, want the second strategy", r.Classifier)
	}

	if got := counterValue(t, m, "classifier_fallbacks_total", "strategy", "model"); got != 1 {
		t.Errorf("fallbacks{strategy=model}: got %v, want 1", got)
	}
}

func TestNew_DetectorErrorCloses(t *testing.T) {
	calls := 0
	failUpload := WithDetectorFactory(func(cfg face.Config) (face.Detector, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("cascade missing")
		}
		return face.NewMock(), nil
	})

	_, err := New(config.Default(), metrics.New(), nil, failUpload, WithClassifierFactory(brokenModelChain))
	if err == nil || !strings.Contains(err.Error(), "upload detector") {
		t.Errorf("expected upload detector error, got %v", err)
	}
}
