package dto

import (
	"time"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// AgentLoginRequest payload.
type AgentLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AgentLoginResponse returns the console bearer token.
type AgentLoginResponse struct {
	Agent     AgentResponse `json:"agent"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// SetPresenceRequest payload.
type SetPresenceRequest struct {
	Online bool `json:"online"`
}

// AgentResponse is the console-facing agent snapshot.
type AgentResponse struct {
	ID                 string     `json:"id"`
	DisplayName        string     `json:"display_name"`
	IsOnline           bool       `json:"is_online"`
	OnlineSince        *time.Time `json:"online_since,omitempty"`
	Capabilities       []string   `json:"capabilities"`
	CurrentLoad        int        `json:"current_load"`
	MaxConcurrentChats int        `json:"max_concurrent_chats"`
}

// NewAgentResponse maps a domain agent.
func NewAgentResponse(agent *domain.Agent) AgentResponse {
	return AgentResponse{
		ID:                 agent.ID,
		DisplayName:        agent.DisplayName,
		IsOnline:           agent.IsOnline,
		OnlineSince:        agent.OnlineSince,
		Capabilities:       agent.Capabilities,
		CurrentLoad:        agent.CurrentLoad,
		MaxConcurrentChats: agent.MaxConcurrentChats,
	}
}
