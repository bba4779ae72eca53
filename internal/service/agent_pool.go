package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/persistence"
	"github.com/spec-kit/support-chat-service/internal/repository"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// AgentPool tracks agent presence and capacity and performs assignment
// selection. Capacity accounting itself lives behind the registry's
// transition API; the pool only decides who gets the next session.
type AgentPool struct {
	agents   repository.AgentRepository
	sessions repository.SessionRepository
	registry *SessionRegistry
	presence *persistence.PresenceCache
	logger   *zap.Logger
}

// PoolDependencies bundles collaborators.
type PoolDependencies struct {
	AgentRepo   repository.AgentRepository
	SessionRepo repository.SessionRepository
	Registry    *SessionRegistry
	Presence    *persistence.PresenceCache
	Logger      *zap.Logger
}

// NewAgentPool constructs the pool.
func NewAgentPool(deps PoolDependencies) *AgentPool {
	return &AgentPool{
		agents:   deps.AgentRepo,
		sessions: deps.SessionRepo,
		registry: deps.Registry,
		presence: deps.Presence,
		logger:   deps.Logger,
	}
}

// SelectAgent picks the eligible agent for a category: online, spare
// capacity, capability match, least loaded. Ties break toward the agent
// idle online the longest.
func (p *AgentPool) SelectAgent(ctx context.Context, category string) (*domain.Agent, error) {
	candidates, err := p.agents.List(ctx, repository.AgentFilter{OnlineOnly: true})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var best *domain.Agent
	for i := range candidates {
		agent := &candidates[i]
		if !agent.HasSpareCapacity() || !agent.CanService(category) {
			continue
		}
		if best == nil || lessLoaded(agent, best) {
			best = agent
		}
	}
	if best == nil {
		return nil, apperrors.NewNoAgentAvailable(category)
	}
	return best, nil
}

func lessLoaded(a, b *domain.Agent) bool {
	if a.CurrentLoad != b.CurrentLoad {
		return a.CurrentLoad < b.CurrentLoad
	}
	switch {
	case a.OnlineSince == nil:
		return false
	case b.OnlineSince == nil:
		return true
	default:
		return a.OnlineSince.Before(*b.OnlineSince)
	}
}

// TryDispatch attempts an immediate assignment for a freshly started
// session. No agent available is not an error: the session stays WAITING
// for the agent-side pull.
func (p *AgentPool) TryDispatch(ctx context.Context, session *domain.Session) (*domain.Session, bool) {
	agent, err := p.SelectAgent(ctx, session.Category)
	if err != nil {
		return session, false
	}
	assigned, err := p.registry.AssignAgent(ctx, session.PublicID, agent.ID)
	if err != nil {
		if p.logger != nil {
			p.logger.Debug("immediate dispatch failed",
				zap.String("session_id", session.PublicID),
				zap.String("agent_id", agent.ID),
				zap.Error(err))
		}
		return session, false
	}
	return assigned, true
}

// ClaimNextWaiting is the agent-initiated pull: it walks the waiting queue
// in priority desc, createdAt asc order and binds the first session it can
// claim. A candidate lost to a concurrent claim is skipped, not an error.
func (p *AgentPool) ClaimNextWaiting(ctx context.Context, agentID string) (*domain.Session, error) {
	agent, err := p.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !agent.IsOnline {
		return nil, apperrors.NewAgentOffline(agentID)
	}
	if !agent.HasSpareCapacity() {
		return nil, apperrors.NewAgentAtCapacity(agentID)
	}

	waiting := domain.SessionStatusWaiting
	candidates, err := p.sessions.ListWithFilter(ctx, repository.SessionFilter{Status: &waiting})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	for i := range candidates {
		candidate := &candidates[i]
		if !agent.CanService(candidate.Category) {
			continue
		}
		assigned, err := p.registry.AssignAgent(ctx, candidate.PublicID, agentID)
		if err != nil {
			switch apperrors.CodeOf(err) {
			case "ALREADY_ASSIGNED", "STALE_STATE":
				continue
			default:
				return nil, err
			}
		}
		return assigned, nil
	}
	return nil, apperrors.NewNoSessionsWaiting()
}

// SetPresence flips the operator-controlled online flag. Going offline
// never unbinds already ACTIVE sessions; it only removes the agent from
// future selection.
func (p *AgentPool) SetPresence(ctx context.Context, agentID string, online bool) (*domain.Agent, error) {
	now := time.Now()
	if err := p.agents.SetPresence(ctx, agentID, online, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if p.presence != nil {
		if err := p.presence.Heartbeat(ctx, agentID, online); err != nil && p.logger != nil {
			p.logger.Warn("presence cache heartbeat failed", zap.String("agent_id", agentID), zap.Error(err))
		}
	}
	return p.agents.GetByID(ctx, agentID)
}
