// Package server exposes the conversation pipeline over HTTP for the browser
// UI: upload a recording, reset, read the transcript and fetch spoken replies.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/aryandadwal2006/PsychAI-Version-1/conversation"
	"github.com/aryandadwal2006/PsychAI-Version-1/engine"
	"github.com/aryandadwal2006/PsychAI-Version-1/metrics"
	"github.com/aryandadwal2006/PsychAI-Version-1/orchestrator"
)

// Conversation is the pipeline as seen by the HTTP layer.
type Conversation interface {
	Process(ctx context.Context, audioPath string) orchestrator.Result
	Reset() orchestrator.Result
	Transcript() []conversation.Turn
	SessionID() string
}

type Config struct {
	Address   string
	Port      int
	UploadDir string // where recordings are stored while a turn runs
	AudioDir  string // synthesized replies, served under /audio
	BodyLimit int    // bytes; 0 uses 32 MiB
}

// Server is the HTTP UI boundary
type Server struct {
	app  *fiber.App
	cfg  Config
	conv Conversation

	// Turns and resets run one at a time.
	mu sync.Mutex

	engines []*engine.Availability
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// New builds the server. reg is served on /metrics; engines are reported by
// /api/health.
func New(cfg Config, conv Conversation, engines []*engine.Availability, reg prometheus.Gatherer, log logrus.FieldLogger, m *metrics.Metrics) *Server {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 32 << 20
	}
	s := &Server{
		cfg:     cfg,
		conv:    conv,
		engines: engines,
		log:     log.WithField("component", "server"),
		metrics: m,
	}

	app := fiber.New(fiber.Config{
		AppName:               "PsychAI",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
	})

	app.Use(cors.New())
	app.Use(s.observe)

	api := app.Group("/api")
	api.Post("/turn", s.handleTurn)
	api.Post("/reset", s.handleReset)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/health", s.handleHealth)

	app.Get("/audio/:name", s.handleAudio)

	if reg != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.Addr()).Info("listening")
	return s.app.Listen(s.Addr())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// observe logs and counts every request by its route pattern.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if fe, ok := err.(*fiber.Error); ok {
		status = fe.Code
	}
	route := c.Route().Path
	elapsed := time.Since(start)

	s.metrics.ObserveHTTP(route, status, elapsed)
	s.log.WithFields(logrus.Fields{
		"method":  c.Method(),
		"route":   route,
		"status":  status,
		"elapsed": elapsed.String(),
	}).Debug("request")
	return err
}
