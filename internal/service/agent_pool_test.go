package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat-service/internal/domain"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

func TestSelectAgentPicksLeastLoaded(t *testing.T) {
	env := newTestEnv(t)
	busy := env.seedAgent(t, "busy", nil, 3)
	idle := env.seedAgent(t, "idle", nil, 3)

	require.NoError(t, env.agents.IncrementLoad(context.Background(), busy.ID))
	require.NoError(t, env.agents.IncrementLoad(context.Background(), busy.ID))

	picked, err := env.pool.SelectAgent(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, idle.ID, picked.ID)
}

func TestSelectAgentSkipsOfflineAndFull(t *testing.T) {
	env := newTestEnv(t)
	offline := env.seedAgent(t, "offline", nil, 3)
	require.NoError(t, env.agents.SetPresence(context.Background(), offline.ID, false, time.Now()))

	full := env.seedAgent(t, "full", nil, 1)
	require.NoError(t, env.agents.IncrementLoad(context.Background(), full.ID))

	_, err := env.pool.SelectAgent(context.Background(), "billing")
	assert.Equal(t, "NO_AGENT_AVAILABLE", apperrors.CodeOf(err))
}

func TestSelectAgentHonorsCapabilities(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "billing-only", []string{"billing"}, 3)
	generalist := env.seedAgent(t, "generalist", nil, 3)

	picked, err := env.pool.SelectAgent(context.Background(), "shipping")
	require.NoError(t, err)
	assert.Equal(t, generalist.ID, picked.ID)
}

func TestSelectAgentTieBreaksOnOnlineSince(t *testing.T) {
	env := newTestEnv(t)
	late := env.seedAgent(t, "late", nil, 3)
	early := env.seedAgent(t, "early", nil, 3)

	now := time.Now()
	require.NoError(t, env.agents.SetPresence(context.Background(), late.ID, false, now))
	require.NoError(t, env.agents.SetPresence(context.Background(), early.ID, false, now))
	require.NoError(t, env.agents.SetPresence(context.Background(), early.ID, true, now.Add(-time.Hour)))
	require.NoError(t, env.agents.SetPresence(context.Background(), late.ID, true, now))

	picked, err := env.pool.SelectAgent(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, early.ID, picked.ID)
}

func TestTryDispatchAssignsWhenAgentAvailable(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 3)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	assigned, ok := env.pool.TryDispatch(context.Background(), session)
	require.True(t, ok)
	assert.Equal(t, domain.SessionStatusActive, assigned.Status)
	require.NotNil(t, assigned.AgentID)
	assert.Equal(t, agent.ID, *assigned.AgentID)
}

func TestTryDispatchLeavesSessionWaitingWithoutAgents(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	same, ok := env.pool.TryDispatch(context.Background(), session)
	assert.False(t, ok)
	assert.Equal(t, domain.SessionStatusWaiting, same.Status)
}

func TestClaimNextWaitingFollowsQueueOrder(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 3)

	env.startSession(t, "billing", domain.SessionPriorityLow, "low urgency")
	urgent := env.startSession(t, "billing", domain.SessionPriorityUrgent, "everything is down")
	env.startSession(t, "billing", domain.SessionPriorityMedium, "question")

	claimed, err := env.pool.ClaimNextWaiting(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, urgent.PublicID, claimed.PublicID)
}

func TestClaimNextWaitingFIFOWithinPriority(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 3)

	first := env.startSession(t, "billing", domain.SessionPriorityMedium, "first")
	time.Sleep(2 * time.Millisecond)
	env.startSession(t, "billing", domain.SessionPriorityMedium, "second")

	claimed, err := env.pool.ClaimNextWaiting(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PublicID, claimed.PublicID)
}

func TestClaimNextWaitingSkipsUnservicedCategories(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "billing-only", []string{"billing"}, 3)

	env.startSession(t, "shipping", domain.SessionPriorityUrgent, "where is my parcel")
	match := env.startSession(t, "billing", domain.SessionPriorityLow, "invoice question")

	claimed, err := env.pool.ClaimNextWaiting(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, match.PublicID, claimed.PublicID)
}

func TestClaimNextWaitingEmptyQueue(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 3)

	_, err := env.pool.ClaimNextWaiting(context.Background(), agent.ID)
	assert.Equal(t, "NO_SESSIONS_WAITING", apperrors.CodeOf(err))
}

func TestClaimNextWaitingRequiresOnlineAndCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	offline := env.seedAgent(t, "offline", nil, 3)
	require.NoError(t, env.agents.SetPresence(context.Background(), offline.ID, false, time.Now()))
	_, err := env.pool.ClaimNextWaiting(context.Background(), offline.ID)
	assert.Equal(t, "AGENT_OFFLINE", apperrors.CodeOf(err))

	full := env.seedAgent(t, "full", nil, 1)
	require.NoError(t, env.agents.IncrementLoad(context.Background(), full.ID))
	_, err = env.pool.ClaimNextWaiting(context.Background(), full.ID)
	assert.Equal(t, "AGENT_AT_CAPACITY", apperrors.CodeOf(err))

	_, err = env.pool.ClaimNextWaiting(context.Background(), "missing-agent")
	assert.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))
}

func TestGoingOfflineKeepsActiveSessionsBound(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 3)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.AssignAgent(context.Background(), session.PublicID, agent.ID)
	require.NoError(t, err)

	updated, err := env.pool.SetPresence(context.Background(), agent.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsOnline)
	assert.Equal(t, 1, updated.CurrentLoad)

	active, err := env.registry.GetSession(context.Background(), session.PublicID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, active.Status)
	require.NotNil(t, active.AgentID)
	assert.Equal(t, agent.ID, *active.AgentID)

	// But the offline agent no longer receives new work.
	env.startSession(t, "billing", domain.SessionPriorityMedium, "another")
	_, err = env.pool.SelectAgent(context.Background(), "billing")
	assert.Equal(t, "NO_AGENT_AVAILABLE", apperrors.CodeOf(err))
}

func TestPresenceFlapKeepsOriginalOnlineSince(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 3)

	first, err := env.agents.GetByID(context.Background(), agent.ID)
	require.NoError(t, err)
	require.NotNil(t, first.OnlineSince)

	// A second online heartbeat must not reset the tiebreak anchor.
	require.NoError(t, env.agents.SetPresence(context.Background(), agent.ID, true, time.Now().Add(time.Hour)))
	second, err := env.agents.GetByID(context.Background(), agent.ID)
	require.NoError(t, err)
	require.NotNil(t, second.OnlineSince)
	assert.True(t, second.OnlineSince.Equal(*first.OnlineSince))
}
