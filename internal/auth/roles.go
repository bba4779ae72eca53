package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// RequireAgent ensures an agent principal is authenticated.
func RequireAgent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeAgent || principal.Agent == nil {
			return fiber.NewError(http.StatusForbidden, "agent required")
		}
		return c.Next()
	}
}

// RequireSessionParty ensures the caller may act on the session named in
// the route: any agent, or a visitor whose token is scoped to it.
func RequireSessionParty(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if principal.SubjectType == domain.SubjectTypeAgent {
			return c.Next()
		}
		if principal.SessionID == nil || *principal.SessionID != c.Params(param) {
			return fiber.NewError(http.StatusForbidden, "token not scoped to this session")
		}
		return c.Next()
	}
}
