// Package gateway exposes the session protocol over HTTP: a websocket channel
// for conversation turns, an upload endpoint for voice-origin turns, and the
// short-lived audio artifact route.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/voxchat-labs/vox-core/internal/config"
	"github.com/voxchat-labs/vox-core/internal/orchestrator"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

// TurnHandler is the orchestrator surface the gateway needs.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID string, msg protocol.ClientMessage) (orchestrator.Outcome, error)
	HandleVoiceTurn(ctx context.Context, sessionID string, audio []byte, msg protocol.ClientMessage) (orchestrator.Outcome, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// HealthFunc reports per-component liveness for the health endpoint.
type HealthFunc func() map[string]bool

// Server is the public HTTP surface of the runtime.
type Server struct {
	app      *fiber.App
	cfg      config.HTTPConfig
	audioDir string
	handler  TurnHandler
	health   HealthFunc
	version  string
	logger   *slog.Logger
}

func NewServer(cfg config.HTTPConfig, audioDir string, handler TurnHandler, health HealthFunc, version string, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		audioDir: audioDir,
		handler:  handler,
		health:   health,
		version:  version,
		logger:   logger.With(slog.String("component", "gateway")),
	}

	app := fiber.New(fiber.Config{
		AppName:               "vox-core",
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxUploadMB * 1024 * 1024,
	})

	app.Use(cors.New())

	app.Get("/api/health", s.handleHealth)
	app.Post("/api/speech-to-text", s.handleSpeechToText)
	app.Get("/audio/:filename", s.handleAudio)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleSession))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// Listen blocks serving HTTP until Shutdown.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	s.logger.Info("gateway listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
