package service

import (
	"context"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/repository"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// SyncGateway is the pull-based read path both clients converge through.
// A poll is safe to repeat: re-delivering an already-seen seq is a no-op
// for the client, and the server never discards a persisted message.
type SyncGateway struct {
	registry *SessionRegistry
	store    *MessageStore
	messages repository.MessageRepository
	// pollWindowLimit bounds one poll response; a lagging client catches
	// up across successive polls.
	pollWindowLimit int
}

// NewSyncGateway constructs the gateway.
func NewSyncGateway(registry *SessionRegistry, store *MessageStore, messages repository.MessageRepository, pollWindowLimit int) *SyncGateway {
	if pollWindowLimit <= 0 {
		pollWindowLimit = 200
	}
	return &SyncGateway{
		registry:        registry,
		store:           store,
		messages:        messages,
		pollWindowLimit: pollWindowLimit,
	}
}

// PollResult is one convergence snapshot: current session fields plus the
// messages after the client's cursor.
type PollResult struct {
	Session  *domain.Session
	Messages []domain.Message
}

// Poll supplies the client's last-rendered seq and returns everything
// newer plus the status snapshot. Supplying afterSeq acknowledges every
// message up to it for the polling role.
func (g *SyncGateway) Poll(ctx context.Context, sessionPublicID string, afterSeq int64, role domain.PartyRole) (*PollResult, error) {
	session, err := g.registry.GetSession(ctx, sessionPublicID)
	if err != nil {
		return nil, err
	}

	if afterSeq > 0 {
		if err := g.messages.MarkRead(ctx, session.ID, afterSeq, role); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	msgs, err := g.messages.ListSince(ctx, session.ID, afterSeq, g.pollWindowLimit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &PollResult{Session: session, Messages: msgs}, nil
}

// QueueItem pairs a session with its unread count for the console view.
type QueueItem struct {
	Session domain.Session
	Unread  int
}

// ListSessionsByStatus serves the agent console queue. WAITING sessions
// come back priority desc, createdAt asc; unread counts are relative to
// the agent side.
func (g *SyncGateway) ListSessionsByStatus(ctx context.Context, status domain.SessionStatus, tenantID *string) ([]QueueItem, error) {
	sessions, err := g.registry.ListByStatus(ctx, status, tenantID)
	if err != nil {
		return nil, err
	}
	items := make([]QueueItem, 0, len(sessions))
	for _, session := range sessions {
		unread, err := g.messages.UnreadCount(ctx, session.ID, domain.PartyRoleAgent)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		items = append(items, QueueItem{Session: session, Unread: unread})
	}
	return items, nil
}
