// affect-cam captures a webcam and reports the stabilized emotion, either
// in-process or by streaming to a running affectd.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-affect/internal/config"
	"github.com/teslashibe/go-affect/internal/log"
	"github.com/teslashibe/go-affect/internal/service"
	"github.com/teslashibe/go-affect/pkg/capture"
	"github.com/teslashibe/go-affect/pkg/client"
	"github.com/teslashibe/go-affect/pkg/emotion"
	"github.com/teslashibe/go-affect/pkg/pipeline"
)

func main() {
	path := flag.String("config", os.Getenv("AFFECT_CONFIG"), "YAML config file")
	server := flag.String("server", "", "affectd base URL; empty runs the pipeline in-process")
	source := flag.String("source", "", "Camera index or video file (overrides config)")
	fps := flag.Float64("fps", 0, "Frames per second (overrides config)")
	patient := flag.String("patient", "", "Patient id for the session")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if *source != "" {
		cfg.Capture.Source = *source
	}
	if *fps > 0 {
		cfg.Capture.FPS = *fps
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	logger := log.Setup(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *server != "" {
		err = runRemote(ctx, cfg, *server, *patient, logger)
	} else {
		err = runLocal(ctx, cfg, *patient, logger)
	}
	if err != nil {
		logger.Error("affect-cam exited", "error", err)
		os.Exit(1)
	}
}

// reporter logs only when the stabilized emotion changes.
type reporter struct {
	last emotion.Label
}

func (r *reporter) report(reading pipeline.Reading) {
	if reading.Emotion == r.last {
		return
	}
	r.last = reading.Emotion
	log.Info("emotion changed",
		"session_id", reading.SessionID,
		"emotion", reading.Emotion,
		"confidence", reading.Confidence,
		"tone", emotion.ToneFor(reading.Emotion),
	)
}

func runLocal(ctx context.Context, cfg *config.Config, patient string, logger *slog.Logger) error {
	svc, err := service.New(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	cam, err := capture.OpenWebcam(cfg.Capture)
	if err != nil {
		return err
	}

	sess := svc.Registry.Start(patient)
	defer svc.Registry.Close(sess.ID())

	var rep reporter
	sink := func(ctx context.Context, f pipeline.Frame) error {
		reading, err := svc.Stream.Detect(ctx, sess.ID(), f)
		rep.report(reading)
		return err
	}

	loop := capture.NewLoop(cam, sink, cfg.Capture, logger)
	err = loop.Run(ctx)
	logger.Info("capture finished", "stats", loop.Stats())
	return err
}

func runRemote(ctx context.Context, cfg *config.Config, server, patient string, logger *slog.Logger) error {
	c, err := client.New(server, client.WithLogger(logger))
	if err != nil {
		return err
	}

	id, err := c.StartSession(ctx, patient)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer func() {
		end, err := c.EndSession(context.Background(), id)
		if err != nil {
			logger.Warn("end session failed", "error", err)
			return
		}
		logger.Info("session ended", "session_id", id, "final_emotion", end.FinalEmotion, "frames", end.Frames)
	}()

	stream, err := c.OpenStream(ctx, id)
	if err != nil {
		return err
	}
	defer stream.Close()

	cam, err := capture.OpenWebcam(cfg.Capture)
	if err != nil {
		return err
	}

	var rep reporter
	sink := func(ctx context.Context, f pipeline.Frame) error {
		reply, err := stream.Detect(ctx, f)
		switch {
		case err != nil:
			return err
		case reply.Error != "":
			return errors.New(reply.Error)
		case reply.Throttled():
			return nil
		}
		rep.report(reply.Reading)
		return nil
	}

	loop := capture.NewLoop(cam, sink, cfg.Capture, logger)
	err = loop.Run(ctx)
	logger.Info("capture finished", "stats", loop.Stats())
	return err
}
