package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
	"github.com/spec-kit/support-chat-service/internal/auth"
	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/service"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// AgentHandler serves the agent console endpoints.
type AgentHandler struct {
	pool     *service.AgentPool
	registry *service.SessionRegistry
	gateway  *service.SyncGateway
}

// NewAgentHandler constructs the handler.
func NewAgentHandler(pool *service.AgentPool, registry *service.SessionRegistry, gateway *service.SyncGateway) *AgentHandler {
	return &AgentHandler{pool: pool, registry: registry, gateway: gateway}
}

// ClaimNext POST /agent/sessions/claim.
func (h *AgentHandler) ClaimNext(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	session, err := h.pool.ClaimNextWaiting(c.UserContext(), principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(session)})
}

// Resolve POST /agent/sessions/:id/resolve.
func (h *AgentHandler) Resolve(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	session, err := h.registry.MarkResolved(c.UserContext(), c.Params("id"), principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(session)})
}

// SetPresence PUT /agent/presence.
func (h *AgentHandler) SetPresence(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.SetPresenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.pool.SetPresence(c.UserContext(), principal.Agent.ID, req.Online)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// ListSessions GET /agent/sessions.
func (h *AgentHandler) ListSessions(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	status := domain.SessionStatus(strings.ToUpper(c.Query("status", string(domain.SessionStatusWaiting))))
	switch status {
	case domain.SessionStatusWaiting, domain.SessionStatusActive, domain.SessionStatusResolved, domain.SessionStatusClosed:
	default:
		return apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}

	var tenantID *string
	if tenant := c.Query("tenant_id"); tenant != "" {
		tenantID = &tenant
	}

	items, err := h.gateway.ListSessionsByStatus(c.UserContext(), status, tenantID)
	if err != nil {
		return err
	}
	out := make([]dto.QueueItemResponse, 0, len(items))
	for i := range items {
		out = append(out, dto.QueueItemResponse{
			Session: sessionResponse(&items[i].Session),
			Unread:  items[i].Unread,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}
