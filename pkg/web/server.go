// Package web exposes the recorder over HTTP and streams level metering
// over a websocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/teslashibe/go-recorder/pkg/capture"
	"github.com/teslashibe/go-recorder/pkg/export"
	"github.com/teslashibe/go-recorder/pkg/hub"
)

// Recorder is the capture surface the server drives.
type Recorder interface {
	Start() error
	Pause()
	Resume()
	Stop() error
	State() capture.State
	Snapshot() capture.Recording
	Metrics() capture.Metrics
}

var _ Recorder = (*capture.Controller)(nil)

// Server is the recorder's control server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	rec       Recorder
	exporter  *export.Exporter
	exportDir string
	origins   string
	meter     *hub.Hub
	proc      *process.Process
}

// Option configures a Server.
type Option func(*Server)

// WithExportDir sets the directory used for exports that name no path.
func WithExportDir(dir string) Option {
	return func(s *Server) {
		s.exportDir = dir
	}
}

// WithAllowedOrigins enables CORS for a comma-separated list of origins.
// Without it no cross-origin headers are sent.
func WithAllowedOrigins(origins string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// NewServer creates a control server for rec.
func NewServer(addr string, rec Recorder, exp *export.Exporter, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:      addr,
		logger:    logger,
		rec:       rec,
		exporter:  exp,
		exportDir: ".",
		meter:     hub.New("meter", logger),
	}
	for _, opt := range opts {
		opt(s)
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	} else {
		logger.Warn("process stats unavailable", "error", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Recorder",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	if s.origins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: s.origins,
			AllowMethods: "GET,POST",
		}))
	}

	api := app.Group("/api", requireJSON)
	api.Get("/status", s.handleStatus)
	api.Post("/start", s.handleStart)
	api.Post("/pause", s.handlePause)
	api.Post("/resume", s.handleResume)
	api.Post("/stop", s.handleStop)
	api.Post("/export", s.handleExport)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/meter", websocket.New(s.handleMeterWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the meter hub.
func (s *Server) Hub() *hub.Hub {
	return s.meter
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the meter hub and serves HTTP on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.meter.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	s.logger.Info("control server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		err := s.app.Shutdown()
		<-hubDone
		return err
	case err := <-errCh:
		cancel()
		<-hubDone
		return err
	}
}

// requireJSON rejects POSTs that are not JSON, so plain HTML forms on
// other sites cannot drive the recorder.
func requireJSON(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.Next()
	}
	ct := strings.ToLower(string(c.Request().Header.ContentType()))
	if !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
		return fiber.ErrUnsupportedMediaType
	}
	return c.Next()
}

// PublishMetrics sends m to every meter client.
func (s *Server) PublishMetrics(m capture.Metrics) {
	if s.meter.ClientCount() == 0 {
		return
	}
	if err := s.meter.Publish(hub.EventMetrics, m); err != nil {
		s.logger.Warn("publish metrics", "error", err)
	}
}

func (s *Server) publish(typ hub.EventType, data any) {
	if err := s.meter.Publish(typ, data); err != nil {
		s.logger.Warn("publish event", "type", typ, "error", err)
	}
}

// statusFor maps recorder errors to HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, capture.ErrAlreadyRecording):
		return fiber.StatusConflict
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, export.ErrEmptyBuffer):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, export.ErrUnknownEncoder):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
