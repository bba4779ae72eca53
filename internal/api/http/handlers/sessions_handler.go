package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
	"github.com/spec-kit/support-chat-service/internal/auth"
	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/service"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// SessionsHandler serves the customer widget endpoints.
type SessionsHandler struct {
	registry *service.SessionRegistry
	pool     *service.AgentPool
	store    *service.MessageStore
	gateway  *service.SyncGateway
	tokens   *auth.TokenManager
}

// SessionsDependencies bundles collaborators.
type SessionsDependencies struct {
	Registry *service.SessionRegistry
	Pool     *service.AgentPool
	Store    *service.MessageStore
	Gateway  *service.SyncGateway
	Tokens   *auth.TokenManager
}

// NewSessionsHandler constructs the handler.
func NewSessionsHandler(deps SessionsDependencies) *SessionsHandler {
	return &SessionsHandler{
		registry: deps.Registry,
		pool:     deps.Pool,
		store:    deps.Store,
		gateway:  deps.Gateway,
		tokens:   deps.Tokens,
	}
}

// StartSession POST /sessions.
func (h *SessionsHandler) StartSession(c *fiber.Ctx) error {
	var req dto.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, msg, err := h.registry.StartSession(c.UserContext(), service.StartSessionInput{
		CustomerID:     req.CustomerID,
		TenantID:       req.TenantID,
		CustomerName:   req.CustomerName,
		Category:       req.Category,
		Priority:       req.Priority,
		InitialMessage: req.Message,
		ClientKey:      req.ClientKey,
	})
	if err != nil {
		return err
	}

	// Best effort: bind an eligible agent right away. No agent online
	// just leaves the session WAITING for the console pull.
	session, _ = h.pool.TryDispatch(c.UserContext(), session)

	visitorID := ""
	if req.CustomerID != nil {
		visitorID = *req.CustomerID
	}
	token, expiresAt, err := h.tokens.GenerateVisitorToken(visitorID, session.PublicID)
	if err != nil {
		return apperrors.MapError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.StartSessionResponse{
		Session:      sessionResponse(session),
		Message:      messageResponse(msg),
		VisitorToken: token,
		TokenExpires: expiresAt,
	}})
}

// SendMessage POST /sessions/:id/messages.
func (h *SessionsHandler) SendMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.AppendInput{
		SessionPublicID: c.Params("id"),
		Body:            req.Body,
		ClientKey:       req.ClientKey,
	}
	if principal.SubjectType == domain.SubjectTypeAgent {
		input.SenderType = domain.SenderTypeAgent
		input.SenderID = &principal.Agent.ID
		input.SenderName = principal.Agent.DisplayName
	} else {
		input.SenderType = domain.SenderTypeCustomer
		input.SenderID = principal.VisitorID
		input.SenderName = req.SenderName
		if input.SenderName == "" {
			input.SenderName = "Customer"
		}
	}

	msg, err := h.store.Append(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// Poll GET /sessions/:id/poll.
func (h *SessionsHandler) Poll(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	afterSeq, err := strconv.ParseInt(c.Query("after", "0"), 10, 64)
	if err != nil || afterSeq < 0 {
		return apperrors.NewValidationError("invalid after cursor", nil)
	}

	result, err := h.gateway.Poll(c.UserContext(), c.Params("id"), afterSeq, principal.Role())
	if err != nil {
		return err
	}

	messages := make([]dto.MessageResponse, 0, len(result.Messages))
	for i := range result.Messages {
		messages = append(messages, messageResponse(&result.Messages[i]))
	}
	return c.JSON(fiber.Map{"data": dto.PollResponse{
		Session:  sessionResponse(result.Session),
		Messages: messages,
	}})
}

// CloseSession POST /sessions/:id/close.
func (h *SessionsHandler) CloseSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CloseSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	reason := domain.CloseReasonCustomer
	if principal.SubjectType == domain.SubjectTypeAgent {
		reason = domain.CloseReasonAgent
	}
	session, err := h.registry.Close(c.UserContext(), c.Params("id"), service.CloseInput{
		Rating:   req.Rating,
		Feedback: req.Feedback,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(session)})
}

func sessionResponse(session *domain.Session) dto.SessionResponse {
	return dto.SessionResponse{
		ID:            session.PublicID,
		CustomerID:    session.CustomerID,
		TenantID:      session.TenantID,
		AgentID:       session.AgentID,
		Status:        session.Status,
		Category:      session.Category,
		Priority:      session.Priority,
		CloseReason:   session.CloseReason,
		Rating:        session.Rating,
		Feedback:      session.Feedback,
		CreatedAt:     session.CreatedAt,
		LastMessageAt: session.LastMessageAt,
		ClosedAt:      session.ClosedAt,
	}
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	readBy := make([]string, 0, len(msg.ReadBy))
	for _, role := range msg.ReadBy {
		readBy = append(readBy, string(role))
	}
	return dto.MessageResponse{
		ID:         msg.Seq,
		SenderID:   msg.SenderID,
		SenderType: msg.SenderType,
		SenderName: msg.SenderName,
		Body:       msg.Body,
		ReadBy:     readBy,
		CreatedAt:  msg.CreatedAt,
	}
}
