package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/repository"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller: either a console agent
// loaded from the store, or a visitor scoped to one session.
type Principal struct {
	SubjectType domain.SubjectType
	Agent       *domain.Agent
	VisitorID   *string
	SessionID   *string
}

// Role maps the principal onto the conversation party it represents.
func (p *Principal) Role() domain.PartyRole {
	if p.SubjectType == domain.SubjectTypeAgent {
		return domain.PartyRoleAgent
	}
	return domain.PartyRoleCustomer
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	agents repository.AgentRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, agents repository.AgentRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, agents: agents}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.Subject}

	switch claims.Subject {
	case domain.SubjectTypeAgent:
		agent, err := m.agents.GetByID(c.Context(), claims.SubjectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewUnauthorized("agent not found")
			}
			return apperrors.MapError(err)
		}
		principal.Agent = agent
	case domain.SubjectTypeVisitor:
		if claims.SessionID == nil {
			return apperrors.NewUnauthorized("visitor token missing session scope")
		}
		if claims.SubjectID != "" {
			visitorID := claims.SubjectID
			principal.VisitorID = &visitorID
		}
		principal.SessionID = claims.SessionID
	default:
		return apperrors.NewUnauthorized("unknown subject type")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated principal.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}
