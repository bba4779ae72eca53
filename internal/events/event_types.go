package events

import (
	"time"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventAgentAssigned   EventType = "agent_assigned"
	EventSessionResolved EventType = "session_resolved"
	EventSessionClosed   EventType = "session_closed"
	EventMessageAppended EventType = "message_appended"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SenderType `json:"type"`
	PartyID *string           `json:"party_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SessionStartedPayload payload.
type SessionStartedPayload struct {
	TenantID *string                `json:"tenant_id,omitempty"`
	Category string                 `json:"category"`
	Priority domain.SessionPriority `json:"priority"`
}

// AgentAssignedPayload payload.
type AgentAssignedPayload struct {
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	CurrentLoad int    `json:"current_load"`
}

// SessionResolvedPayload payload.
type SessionResolvedPayload struct {
	AgentID string `json:"agent_id"`
}

// SessionClosedPayload payload.
type SessionClosedPayload struct {
	Reason  domain.CloseReason `json:"reason"`
	Rating  *int               `json:"rating,omitempty"`
	AgentID *string            `json:"agent_id,omitempty"`
}

// MessageAppendedPayload payload.
type MessageAppendedPayload struct {
	Seq         int64             `json:"seq"`
	SenderType  domain.SenderType `json:"sender_type"`
	SenderName  string            `json:"sender_name"`
	BodyPreview string            `json:"body_preview"`
}
