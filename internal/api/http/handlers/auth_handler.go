package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
	"github.com/spec-kit/support-chat-service/internal/service"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// AuthHandler issues agent console tokens.
type AuthHandler struct {
	authService *service.AgentAuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(authService *service.AgentAuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login POST /auth/agent/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.AgentLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	result, err := h.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AgentLoginResponse{
		Agent:     dto.NewAgentResponse(result.Agent),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}})
}
