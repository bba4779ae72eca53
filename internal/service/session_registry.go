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

// SessionRegistry owns the session state machine and is the only writer
// of Session.Status. Every transition runs under the per-session lock and
// a compare-and-swap against the previously observed status, so two
// concurrent transitions on one session cannot both succeed.
type SessionRegistry struct {
	sessions   repository.SessionRepository
	messages   repository.MessageRepository
	agents     repository.AgentRepository
	locks      *SessionLocks
	dispatcher events.Dispatcher
}

// RegistryDependencies bundles collaborators.
type RegistryDependencies struct {
	SessionRepo repository.SessionRepository
	MessageRepo repository.MessageRepository
	AgentRepo   repository.AgentRepository
	Locks       *SessionLocks
	Dispatcher  events.Dispatcher
}

// NewSessionRegistry constructs the registry.
func NewSessionRegistry(deps RegistryDependencies) *SessionRegistry {
	return &SessionRegistry{
		sessions:   deps.SessionRepo,
		messages:   deps.MessageRepo,
		agents:     deps.AgentRepo,
		locks:      deps.Locks,
		dispatcher: deps.Dispatcher,
	}
}

// StartSessionInput describes the customer-facing entry point payload.
type StartSessionInput struct {
	CustomerID     *string
	TenantID       *string
	CustomerName   string
	Category       string
	Priority       domain.SessionPriority
	InitialMessage string
	ClientKey      *string
}

// CloseInput carries the optional rating capture for the closing transition.
type CloseInput struct {
	Rating   *int
	Feedback *string
	Reason   domain.CloseReason
}

// StartSession creates a WAITING session with its first message appended.
func (s *SessionRegistry) StartSession(ctx context.Context, input StartSessionInput) (*domain.Session, *domain.Message, error) {
	if strings.TrimSpace(input.InitialMessage) == "" {
		return nil, nil, apperrors.NewValidationError("initial message required", nil)
	}
	if input.Priority == "" {
		input.Priority = domain.SessionPriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}

	session := &domain.Session{
		PublicID:   generateSessionKey(),
		CustomerID: input.CustomerID,
		TenantID:   input.TenantID,
		Status:     domain.SessionStatusWaiting,
		Category:   strings.TrimSpace(input.Category),
		Priority:   input.Priority,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		name = "Customer"
	}
	msg := &domain.Message{
		SessionID:  session.ID,
		SenderID:   input.CustomerID,
		SenderType: domain.SenderTypeCustomer,
		SenderName: name,
		Body:       strings.TrimSpace(input.InitialMessage),
		ClientKey:  input.ClientKey,
		ReadBy:     []domain.PartyRole{domain.PartyRoleCustomer},
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	session.LastMessageAt = msg.CreatedAt
	if err := s.sessions.TouchLastMessage(ctx, session.ID, msg.CreatedAt); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:      events.EventSessionStarted,
		SessionID: session.PublicID,
		Actor:     events.Actor{Type: domain.SenderTypeCustomer, PartyID: input.CustomerID},
		Payload: events.SessionStartedPayload{
			TenantID: session.TenantID,
			Category: session.Category,
			Priority: session.Priority,
		},
	})
	return session, msg, nil
}

// GetSession loads a session by its public id.
func (s *SessionRegistry) GetSession(ctx context.Context, publicID string) (*domain.Session, error) {
	session, err := s.sessions.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("session", map[string]any{"session_id": publicID})
		}
		return nil, apperrors.MapError(err)
	}
	return session, nil
}

// AssignAgent performs the WAITING -> ACTIVE transition, binding the agent
// and consuming one unit of its capacity.
func (s *SessionRegistry) AssignAgent(ctx context.Context, publicID, agentID string) (*domain.Session, error) {
	release := s.locks.Acquire(publicID)
	defer release()

	session, err := s.GetSession(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusWaiting {
		return nil, apperrors.NewAlreadyAssigned(publicID)
	}

	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !agent.IsOnline {
		return nil, apperrors.NewAgentOffline(agentID)
	}
	if err := s.agents.IncrementLoad(ctx, agentID); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, apperrors.NewAgentAtCapacity(agentID)
		}
		return nil, apperrors.MapError(err)
	}

	session.AgentID = &agent.ID
	session.Status = domain.SessionStatusActive
	if err := s.sessions.UpdateStatus(ctx, session, domain.SessionStatusWaiting); err != nil {
		// Roll the capacity unit back; the session moved under us.
		_ = s.agents.DecrementLoad(ctx, agentID)
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, apperrors.NewStaleState(publicID)
		}
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:      events.EventAgentAssigned,
		SessionID: session.PublicID,
		Actor:     events.Actor{Type: domain.SenderTypeAgent, PartyID: &agent.ID},
		Payload: events.AgentAssignedPayload{
			AgentID:     agent.ID,
			AgentName:   agent.DisplayName,
			CurrentLoad: agent.CurrentLoad + 1,
		},
	})
	return session, nil
}

// MarkResolved performs ACTIVE -> RESOLVED, callable only by the bound
// agent. The agent's capacity is released here even though the session is
// not yet closed.
func (s *SessionRegistry) MarkResolved(ctx context.Context, publicID, agentID string) (*domain.Session, error) {
	release := s.locks.Acquire(publicID)
	defer release()

	session, err := s.GetSession(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionStatusClosed {
		return nil, apperrors.NewSessionClosed(publicID)
	}
	if session.Status != domain.SessionStatusActive {
		return nil, apperrors.NewStaleState(publicID)
	}
	if session.AgentID == nil || *session.AgentID != agentID {
		return nil, apperrors.NewForbidden("only the bound agent can resolve the session")
	}

	session.Status = domain.SessionStatusResolved
	if err := s.sessions.UpdateStatus(ctx, session, domain.SessionStatusActive); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, apperrors.NewStaleState(publicID)
		}
		return nil, apperrors.MapError(err)
	}
	if err := s.agents.DecrementLoad(ctx, agentID); err != nil && !errors.Is(err, repository.ErrStaleStatus) {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:      events.EventSessionResolved,
		SessionID: session.PublicID,
		Actor:     events.Actor{Type: domain.SenderTypeAgent, PartyID: &agentID},
		Payload:   events.SessionResolvedPayload{AgentID: agentID},
	})
	return session, nil
}

// Close performs the terminal transition from WAITING, ACTIVE or RESOLVED.
// Capacity is released only when the session was still ACTIVE, so a
// RESOLVED close never double-decrements.
func (s *SessionRegistry) Close(ctx context.Context, publicID string, input CloseInput) (*domain.Session, error) {
	if input.Rating != nil && (*input.Rating < 1 || *input.Rating > 5) {
		return nil, apperrors.NewRatingOutOfRange(*input.Rating)
	}

	release := s.locks.Acquire(publicID)
	defer release()

	session, err := s.GetSession(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionStatusClosed {
		return nil, apperrors.NewSessionClosed(publicID)
	}

	previous := session.Status
	now := time.Now()
	reason := input.Reason
	if reason == "" {
		reason = domain.CloseReasonCustomer
	}
	session.Status = domain.SessionStatusClosed
	session.ClosedAt = &now
	session.CloseReason = &reason
	session.Rating = input.Rating
	session.Feedback = input.Feedback

	if err := s.sessions.UpdateStatus(ctx, session, previous); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, apperrors.NewStaleState(publicID)
		}
		return nil, apperrors.MapError(err)
	}
	if previous == domain.SessionStatusActive && session.AgentID != nil {
		if err := s.agents.DecrementLoad(ctx, *session.AgentID); err != nil && !errors.Is(err, repository.ErrStaleStatus) {
			return nil, apperrors.MapError(err)
		}
	}

	s.publish(ctx, events.Event{
		Type:      events.EventSessionClosed,
		SessionID: session.PublicID,
		Actor:     closeActor(reason, session),
		Payload: events.SessionClosedPayload{
			Reason:  reason,
			Rating:  session.Rating,
			AgentID: session.AgentID,
		},
	})
	return session, nil
}

// ListByStatus returns sessions for the agent console queue view. WAITING
// sessions come back priority desc, createdAt asc.
func (s *SessionRegistry) ListByStatus(ctx context.Context, status domain.SessionStatus, tenantID *string) ([]domain.Session, error) {
	filter := repository.SessionFilter{Status: &status, TenantID: tenantID}
	sessions, err := s.sessions.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return sessions, nil
}

func closeActor(reason domain.CloseReason, session *domain.Session) events.Actor {
	switch reason {
	case domain.CloseReasonAgent:
		return events.Actor{Type: domain.SenderTypeAgent, PartyID: session.AgentID}
	case domain.CloseReasonTimedOut:
		return events.Actor{Type: domain.SenderTypeSystem}
	default:
		return events.Actor{Type: domain.SenderTypeCustomer, PartyID: session.CustomerID}
	}
}

func generateSessionKey() string {
	return "CHT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (s *SessionRegistry) publish(ctx context.Context, event events.Event) {
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
