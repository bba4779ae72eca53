package dto

import (
	"time"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// StartSessionRequest payload for the customer widget entry point.
type StartSessionRequest struct {
	CustomerID   *string                `json:"customer_id"`
	TenantID     *string                `json:"tenant_id"`
	CustomerName string                 `json:"customer_name"`
	Category     string                 `json:"category"`
	Priority     domain.SessionPriority `json:"priority"`
	Message      string                 `json:"message"`
	ClientKey    *string                `json:"client_key"`
}

// StartSessionResponse returns the created session, its first message and
// the visitor token the widget authenticates subsequent calls with.
type StartSessionResponse struct {
	Session      SessionResponse `json:"session"`
	Message      MessageResponse `json:"message"`
	VisitorToken string          `json:"visitor_token"`
	TokenExpires time.Time       `json:"token_expires"`
}

// SessionResponse is the client-facing session snapshot.
type SessionResponse struct {
	ID            string                 `json:"id"`
	CustomerID    *string                `json:"customer_id,omitempty"`
	TenantID      *string                `json:"tenant_id,omitempty"`
	AgentID       *string                `json:"agent_id,omitempty"`
	Status        domain.SessionStatus   `json:"status"`
	Category      string                 `json:"category"`
	Priority      domain.SessionPriority `json:"priority"`
	CloseReason   *domain.CloseReason    `json:"close_reason,omitempty"`
	Rating        *int                   `json:"rating,omitempty"`
	Feedback      *string                `json:"feedback,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	LastMessageAt time.Time              `json:"last_message_at"`
	ClosedAt      *time.Time             `json:"closed_at,omitempty"`
}

// CloseSessionRequest carries the optional rating capture.
type CloseSessionRequest struct {
	Rating   *int    `json:"rating"`
	Feedback *string `json:"feedback"`
}

// PollResponse is one convergence snapshot for a polling client.
type PollResponse struct {
	Session  SessionResponse   `json:"session"`
	Messages []MessageResponse `json:"messages"`
}

// QueueItemResponse pairs a session with its agent-side unread count.
type QueueItemResponse struct {
	Session SessionResponse `json:"session"`
	Unread  int             `json:"unread"`
}
