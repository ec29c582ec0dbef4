// Package web serves the emotion pipeline over REST and WebSocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-affect/pkg/hub"
	"github.com/teslashibe/go-affect/pkg/metrics"
	"github.com/teslashibe/go-affect/pkg/pipeline"
	"github.com/teslashibe/go-affect/pkg/session"
)

// Option configures a Server.
type Option func(*Server)

// WithUploadPipeline routes multipart uploads and debug analysis through p,
// typically one with stricter face detection than the stream pipeline.
func WithUploadPipeline(p *pipeline.Pipeline) Option {
	return func(s *Server) { s.upload = p }
}

// WithMetrics exposes m on /api/metrics and counts throttled frames.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHub publishes readings on h instead of a private hub.
func WithHub(h *hub.Hub) Option {
	return func(s *Server) { s.events = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the HTTP and WebSocket front end.
type Server struct {
	app      *fiber.App
	config   Config
	stream   *pipeline.Pipeline
	upload   *pipeline.Pipeline
	registry *session.Registry
	events   *hub.Hub
	metrics  *metrics.Metrics
	logger   *slog.Logger
	started  time.Time
}

// NewServer creates a server in front of stream. The stream pipeline's
// registry is the single source of session state.
func NewServer(cfg Config, stream *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		stream:   stream,
		registry: stream.Registry(),
		logger:   slog.Default(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = hub.New("events", s.logger)
	}
	s.logger = s.logger.With("component", "web")
	if s.upload == nil {
		s.upload = s.stream
	}

	publish := func(r pipeline.Reading) {
		if err := s.events.PublishJSON(r.SessionID, r); err != nil {
			s.logger.Warn("publish reading failed", "session_id", r.SessionID, "error", err)
		}
	}
	s.stream.OnReading(publish)
	if s.upload != s.stream {
		s.upload.OnReading(publish)
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-affect",
		DisableStartupMessage: true,
		Immutable:             true, // route params become registry keys and hub topics
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          s.errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))
	app.Use(s.accessLog)

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	if s.metrics != nil {
		api.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api.Post("/emotion/detect", s.handleDetect)
	api.Post("/emotion/upload/:id", s.handleUpload)
	api.Post("/emotion/debug", s.handleDebug)

	api.Post("/sessions", s.handleStartSession)
	api.Get("/sessions", s.handleListSessions)
	api.Post("/sessions/:id/end", s.handleEndSession)
	api.Get("/sessions/:id/history", s.handleHistory)
	api.Get("/sessions/:id/mood", s.handleGetMood)
	api.Post("/sessions/:id/mood", s.handleSetMood)
	api.Get("/patients/:id/sessions", s.handlePatientSessions)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/:id/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/:id/video", websocket.New(s.handleVideoWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the event hub. The caller runs it.
func (s *Server) Hub() *hub.Hub {
	return s.events
}

// Run serves on the configured address until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errc <- s.app.Listener(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
	)
	return err
}
