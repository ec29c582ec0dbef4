// affectd serves real-time emotion inference over REST and WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-affect/internal/config"
	"github.com/teslashibe/go-affect/internal/log"
	"github.com/teslashibe/go-affect/internal/service"
	"github.com/teslashibe/go-affect/pkg/metrics"
	"github.com/teslashibe/go-affect/pkg/web"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	logger := log.Setup(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logger.Error("affectd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	svc, err := service.New(cfg, m, log.L())
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := web.NewServer(cfg.Server, svc.Stream,
		web.WithUploadPipeline(svc.Upload),
		web.WithMetrics(m),
		web.WithLogger(log.L()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Hub().Run(ctx) })
	g.Go(func() error { return svc.Registry.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	log.Info("affectd started", "addr", cfg.Server.Addr, "classifier", svc.Classifier.Name())
	err = g.Wait()
	log.Info("affectd stopped")
	return err
}

// parseFlags loads the config file then applies command line overrides.
func parseFlags() (*config.Config, error) {
	path := flag.String("config", os.Getenv("AFFECT_CONFIG"), "YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	model := flag.String("model", "", "Emotion model path (overrides config)")
	cascade := flag.String("cascade", "", "Haar cascade path (overrides config)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *model != "" {
		cfg.Classifier.ModelPath = *model
	}
	if *cascade != "" {
		cfg.Stream.CascadePath = *cascade
		cfg.Upload.CascadePath = *cascade
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
