package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/service"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

func TestStartSessionCreatesWaitingWithFirstMessage(t *testing.T) {
	env := newTestEnv(t)

	session, msg, err := env.registry.StartSession(context.Background(), service.StartSessionInput{
		CustomerName:   "Ada",
		Category:       "billing",
		Priority:       domain.SessionPriorityHigh,
		InitialMessage: "  I was charged twice  ",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SessionStatusWaiting, session.Status)
	assert.True(t, strings.HasPrefix(session.PublicID, "CHT-"))
	assert.Nil(t, session.AgentID)
	assert.Equal(t, domain.SessionPriorityHigh, session.Priority)

	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, "I was charged twice", msg.Body)
	assert.Equal(t, domain.SenderTypeCustomer, msg.SenderType)
	assert.True(t, msg.ReadByRole(domain.PartyRoleCustomer))
	assert.False(t, msg.ReadByRole(domain.PartyRoleAgent))
}

func TestStartSessionDefaultsPriorityToMedium(t *testing.T) {
	env := newTestEnv(t)

	session := env.startSession(t, "general", "", "hello")
	assert.Equal(t, domain.SessionPriorityMedium, session.Priority)
}

func TestStartSessionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.registry.StartSession(context.Background(), service.StartSessionInput{
		InitialMessage: "   ",
	})
	assert.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))

	_, _, err = env.registry.StartSession(context.Background(), service.StartSessionInput{
		Priority:       "CRITICAL",
		InitialMessage: "hello",
	})
	assert.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))
}

func TestAssignAgentBindsAndConsumesCapacity(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 2)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	assigned, err := env.registry.AssignAgent(context.Background(), session.PublicID, agent.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.SessionStatusActive, assigned.Status)
	require.NotNil(t, assigned.AgentID)
	assert.Equal(t, agent.ID, *assigned.AgentID)
	assert.Equal(t, 1, env.agentLoad(t, agent.ID))
}

func TestAssignAgentRejectsNonWaitingSession(t *testing.T) {
	env := newTestEnv(t)
	first := env.seedAgent(t, "sam", nil, 2)
	second := env.seedAgent(t, "kim", nil, 2)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.AssignAgent(context.Background(), session.PublicID, first.ID)
	require.NoError(t, err)

	_, err = env.registry.AssignAgent(context.Background(), session.PublicID, second.ID)
	assert.Equal(t, "ALREADY_ASSIGNED", apperrors.CodeOf(err))
	assert.Equal(t, 0, env.agentLoad(t, second.ID))
}

func TestAssignAgentRejectsOfflineAgent(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 2)
	require.NoError(t, env.agents.SetPresence(context.Background(), agent.ID, false, agent.CreatedAt))
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.AssignAgent(context.Background(), session.PublicID, agent.ID)
	assert.Equal(t, "AGENT_OFFLINE", apperrors.CodeOf(err))
}

func TestAssignAgentRejectsAtCapacity(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 1)
	first := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")
	second := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi again")

	_, err := env.registry.AssignAgent(context.Background(), first.PublicID, agent.ID)
	require.NoError(t, err)

	_, err = env.registry.AssignAgent(context.Background(), second.PublicID, agent.ID)
	assert.Equal(t, "AGENT_AT_CAPACITY", apperrors.CodeOf(err))
	assert.Equal(t, 1, env.agentLoad(t, agent.ID))
}

func TestConcurrentAssignExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	first := env.seedAgent(t, "sam", nil, 2)
	second := env.seedAgent(t, "kim", nil, 2)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, agentID := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(slot int, id string) {
			defer wg.Done()
			_, errs[slot] = env.registry.AssignAgent(context.Background(), session.PublicID, id)
		}(i, agentID)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, "ALREADY_ASSIGNED", apperrors.CodeOf(err))
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, env.agentLoad(t, first.ID)+env.agentLoad(t, second.ID))
}

func TestMarkResolvedRequiresBoundAgent(t *testing.T) {
	env := newTestEnv(t)
	bound := env.seedAgent(t, "sam", nil, 2)
	other := env.seedAgent(t, "kim", nil, 2)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.AssignAgent(context.Background(), session.PublicID, bound.ID)
	require.NoError(t, err)

	_, err = env.registry.MarkResolved(context.Background(), session.PublicID, other.ID)
	assert.Equal(t, "FORBIDDEN", apperrors.CodeOf(err))

	resolved, err := env.registry.MarkResolved(context.Background(), session.PublicID, bound.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusResolved, resolved.Status)
	require.NotNil(t, resolved.AgentID)
	assert.Equal(t, bound.ID, *resolved.AgentID)
	assert.Equal(t, 0, env.agentLoad(t, bound.ID))
}

func TestMarkResolvedRejectsWaitingSession(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 2)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.MarkResolved(context.Background(), session.PublicID, agent.ID)
	assert.Equal(t, "STALE_STATE", apperrors.CodeOf(err))
}

func TestCloseFromWaiting(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	closed, err := env.registry.Close(context.Background(), session.PublicID, service.CloseInput{
		Reason: domain.CloseReasonCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosed, closed.Status)
	require.NotNil(t, closed.CloseReason)
	assert.Equal(t, domain.CloseReasonCustomer, *closed.CloseReason)
	assert.NotNil(t, closed.ClosedAt)
}

func TestCloseActiveReleasesCapacityAndKeepsAgent(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 2)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.AssignAgent(context.Background(), session.PublicID, agent.ID)
	require.NoError(t, err)

	closed, err := env.registry.Close(context.Background(), session.PublicID, service.CloseInput{
		Rating:   intPtr(5),
		Feedback: strPtr("great help"),
		Reason:   domain.CloseReasonCustomer,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, env.agentLoad(t, agent.ID))
	require.NotNil(t, closed.AgentID)
	assert.Equal(t, agent.ID, *closed.AgentID)
	require.NotNil(t, closed.Rating)
	assert.Equal(t, 5, *closed.Rating)
}

func TestCloseAfterResolveDoesNotDoubleDecrement(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "sam", nil, 2)
	other := env.startSession(t, "billing", domain.SessionPriorityMedium, "other")
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.AssignAgent(context.Background(), other.PublicID, agent.ID)
	require.NoError(t, err)
	_, err = env.registry.AssignAgent(context.Background(), session.PublicID, agent.ID)
	require.NoError(t, err)
	require.Equal(t, 2, env.agentLoad(t, agent.ID))

	_, err = env.registry.MarkResolved(context.Background(), session.PublicID, agent.ID)
	require.NoError(t, err)
	require.Equal(t, 1, env.agentLoad(t, agent.ID))

	_, err = env.registry.Close(context.Background(), session.PublicID, service.CloseInput{
		Reason: domain.CloseReasonCustomer,
	})
	require.NoError(t, err)

	// The other active session still holds its capacity unit.
	assert.Equal(t, 1, env.agentLoad(t, agent.ID))
}

func TestCloseIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.Close(context.Background(), session.PublicID, service.CloseInput{})
	require.NoError(t, err)

	_, err = env.registry.Close(context.Background(), session.PublicID, service.CloseInput{Rating: intPtr(3)})
	assert.Equal(t, "SESSION_CLOSED", apperrors.CodeOf(err))
}

func TestCloseRejectsRatingOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	for _, rating := range []int{0, 6, -1} {
		_, err := env.registry.Close(context.Background(), session.PublicID, service.CloseInput{Rating: intPtr(rating)})
		assert.Equal(t, "RATING_OUT_OF_RANGE", apperrors.CodeOf(err))
	}

	got, err := env.registry.GetSession(context.Background(), session.PublicID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusWaiting, got.Status)
}

func TestGetSessionUnknownID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.GetSession(context.Background(), "CHT-DOESNOTEXIST")
	assert.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))
}
