package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/support-chat-service/internal/auth"
	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/repository"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// AgentAuthService issues console tokens at the interface boundary.
// Agent identities themselves are provisioned externally; this only
// verifies credentials and signs tokens.
type AgentAuthService struct {
	agents repository.AgentRepository
	tokens *auth.TokenManager
}

// NewAgentAuthService constructs the service.
func NewAgentAuthService(agents repository.AgentRepository, tokens *auth.TokenManager) *AgentAuthService {
	return &AgentAuthService{agents: agents, tokens: tokens}
}

// LoginResult carries a signed agent token.
type LoginResult struct {
	Agent     *domain.Agent
	Token     string
	ExpiresAt time.Time
}

// Login verifies the agent's credentials and issues a bearer token.
func (s *AgentAuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	agent, err := s.agents.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(agent.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateAgentToken(agent.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &LoginResult{Agent: agent, Token: token, ExpiresAt: expiresAt}, nil
}

// TokenManager exposes the underlying manager for middleware wiring.
func (s *AgentAuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}
