package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat-service/internal/api/http/handlers"
	"github.com/spec-kit/support-chat-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Sessions       *handlers.SessionsHandler
	Agent          *handlers.AgentHandler
	Auth           *handlers.AuthHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/agent/login", cfg.Auth.Login)

	// Session creation is unauthenticated: the widget obtains its
	// session-scoped visitor token from the response.
	app.Post("/sessions", cfg.Sessions.StartSession)

	sessions := app.Group("/sessions", cfg.AuthMiddleware.Handle, auth.RequireSessionParty("id"))
	sessions.Post("/:id/messages", cfg.Sessions.SendMessage)
	sessions.Get("/:id/poll", cfg.Sessions.Poll)
	sessions.Post("/:id/close", cfg.Sessions.CloseSession)

	agent := app.Group("/agent", cfg.AuthMiddleware.Handle, auth.RequireAgent())
	agent.Post("/sessions/claim", cfg.Agent.ClaimNext)
	agent.Post("/sessions/:id/resolve", cfg.Agent.Resolve)
	agent.Put("/presence", cfg.Agent.SetPresence)
	agent.Get("/sessions", cfg.Agent.ListSessions)
}
