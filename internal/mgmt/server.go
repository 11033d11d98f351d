// Package mgmt is the management REST API: chat configuration and session
// inspection over HTTP, separate from the Telegram surface.
package mgmt

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/nightwatch-dev/nightwatch/internal/health"
	"github.com/nightwatch-dev/nightwatch/internal/store"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr string
	APIKey     string // empty disables auth
}

// Server is the management API Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures a management API server.
func NewServer(cfg ServerConfig, st *store.Store, sessions SessionController, checker *health.Checker, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "mgmt").Logger(),
		config: cfg,
	}

	h := NewHandlers(st, sessions, checker, logger)
	s.setupMiddleware(cfg)
	s.setupRoutes(h)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	if cfg.APIKey != "" {
		s.app.Use(apiKeyAuth(cfg.APIKey))
	}

	// Request log, skipping probe noise.
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" {
			return c.Next()
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Msg("mgmt api request")
		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	v1 := s.app.Group("/api/v1")

	v1.Get("/chats", h.ListChats)
	v1.Post("/chats", h.RegisterChat)
	v1.Get("/chats/:id", h.GetChat)
	v1.Patch("/chats/:id/enabled", h.PatchEnabled)
	v1.Patch("/chats/:id/window", h.PatchWindow)
	v1.Patch("/chats/:id/notify-text", h.PatchNotifyText)
	v1.Get("/chats/:id/session", h.GetActiveSession)
	v1.Post("/chats/:id/force-close", h.ForceClose)
}

// apiKeyAuth validates the Authorization bearer token. Probe endpoints stay
// open.
func apiKeyAuth(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" {
			return c.Next()
		}

		auth := c.Get("Authorization")
		if auth == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		if strings.TrimPrefix(auth, "Bearer ") != apiKey {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_api_key", "Unauthorized",
				"Invalid API key")
		}
		return c.Next()
	}
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}
	s.logger.Info().Str("addr", addr).Msg("management API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		errType, title := "internal_error", "Internal Server Error"
		switch code {
		case fiber.StatusBadRequest:
			errType, title = "bad_request", "Bad Request"
		case fiber.StatusInternalServerError:
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     errType,
			Title:    title,
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
