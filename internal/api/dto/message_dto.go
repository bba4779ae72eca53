package dto

import (
	"time"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// SendMessageRequest payload.
type SendMessageRequest struct {
	Body string `json:"body"`
	// SenderName is the display label snapshot for visitor messages;
	// agent messages always use the agent's stored display name.
	SenderName string `json:"sender_name"`
	// ClientKey lets the sender retry the same send idempotently; the
	// server returns the original message for a repeated key.
	ClientKey *string `json:"client_key"`
}

// MessageResponse represents one log entry.
type MessageResponse struct {
	ID         int64             `json:"id"`
	SenderID   *string           `json:"sender_id,omitempty"`
	SenderType domain.SenderType `json:"sender_type"`
	SenderName string            `json:"sender_name"`
	Body       string            `json:"body"`
	ReadBy     []string          `json:"read_by"`
	CreatedAt  time.Time         `json:"created_at"`
}
