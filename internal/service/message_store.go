package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/repository"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// MessageStore appends to the per-session ordered log. Appends run under
// the same per-session lock the registry uses for transitions, so a close
// and an append on one session cannot interleave.
type MessageStore struct {
	sessions   repository.SessionRepository
	messages   repository.MessageRepository
	locks      *SessionLocks
	dispatcher events.Dispatcher
}

// StoreDependencies bundles collaborators.
type StoreDependencies struct {
	SessionRepo repository.SessionRepository
	MessageRepo repository.MessageRepository
	Locks       *SessionLocks
	Dispatcher  events.Dispatcher
}

// NewMessageStore constructs the store.
func NewMessageStore(deps StoreDependencies) *MessageStore {
	return &MessageStore{
		sessions:   deps.SessionRepo,
		messages:   deps.MessageRepo,
		locks:      deps.Locks,
		dispatcher: deps.Dispatcher,
	}
}

// AppendInput describes one outgoing message.
type AppendInput struct {
	SessionPublicID string
	SenderID        *string
	SenderType      domain.SenderType
	SenderName      string
	Body            string
	// ClientKey deduplicates retries of the same send. A repeat append
	// with a key already persisted for the session returns the original
	// message instead of writing a second copy.
	ClientKey *string
}

// Append persists one message, assigning the next sequence number for the
// session and stamping last activity.
func (s *MessageStore) Append(ctx context.Context, input AppendInput) (*domain.Message, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}

	release := s.locks.Acquire(input.SessionPublicID)
	defer release()

	session, err := s.sessions.GetByPublicID(ctx, input.SessionPublicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("session", map[string]any{"session_id": input.SessionPublicID})
		}
		return nil, apperrors.MapError(err)
	}
	if session.Status == domain.SessionStatusClosed {
		return nil, apperrors.NewSessionClosed(input.SessionPublicID)
	}

	msg := &domain.Message{
		SessionID:  session.ID,
		SenderID:   input.SenderID,
		SenderType: input.SenderType,
		SenderName: strings.TrimSpace(input.SenderName),
		Body:       body,
		ClientKey:  input.ClientKey,
	}
	if role, ok := senderRole(input.SenderType); ok {
		msg.ReadBy = []domain.PartyRole{role}
	}

	if err := s.messages.Append(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) && input.ClientKey != nil {
			return s.messages.GetByClientKey(ctx, session.ID, *input.ClientKey)
		}
		return nil, apperrors.MapError(err)
	}
	if err := s.sessions.TouchLastMessage(ctx, session.ID, msg.CreatedAt); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:      events.EventMessageAppended,
		SessionID: session.PublicID,
		Actor:     events.Actor{Type: input.SenderType, PartyID: input.SenderID},
		Payload: events.MessageAppendedPayload{
			Seq:         msg.Seq,
			SenderType:  msg.SenderType,
			SenderName:  msg.SenderName,
			BodyPreview: bodyPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

// ListSince returns messages with seq > afterSeq in ascending order. This
// is the fundamental read primitive; there is no push path.
func (s *MessageStore) ListSince(ctx context.Context, sessionPublicID string, afterSeq int64, limit int) ([]domain.Message, error) {
	session, err := s.sessions.GetByPublicID(ctx, sessionPublicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("session", map[string]any{"session_id": sessionPublicID})
		}
		return nil, apperrors.MapError(err)
	}
	msgs, err := s.messages.ListSince(ctx, session.ID, afterSeq, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return msgs, nil
}

func senderRole(sender domain.SenderType) (domain.PartyRole, bool) {
	switch sender {
	case domain.SenderTypeCustomer:
		return domain.PartyRoleCustomer, true
	case domain.SenderTypeAgent:
		return domain.PartyRoleAgent, true
	default:
		return "", false
	}
}

func bodyPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}

func (s *MessageStore) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
