package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/repository"
	"github.com/spec-kit/support-chat-service/internal/service"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

func (e *testEnv) appendN(t *testing.T, session *domain.Session, sender domain.SenderType, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.store.Append(context.Background(), service.AppendInput{
			SessionPublicID: session.PublicID,
			SenderType:      sender,
			SenderName:      "party",
			Body:            fmt.Sprintf("%s message %d", sender, i),
		})
		require.NoError(t, err)
	}
}

func TestPollReturnsMessagesAfterCursor(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")
	env.appendN(t, session, domain.SenderTypeAgent, 3)

	result, err := env.gateway.Poll(context.Background(), session.PublicID, 1, domain.PartyRoleCustomer)
	require.NoError(t, err)

	require.Len(t, result.Messages, 3)
	for i, msg := range result.Messages {
		assert.Equal(t, int64(i+2), msg.Seq)
	}
	assert.Equal(t, domain.SessionStatusWaiting, result.Session.Status)
}

func TestPollIsRepeatable(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")
	env.appendN(t, session, domain.SenderTypeAgent, 2)

	first, err := env.gateway.Poll(context.Background(), session.PublicID, 0, domain.PartyRoleCustomer)
	require.NoError(t, err)
	second, err := env.gateway.Poll(context.Background(), session.PublicID, 0, domain.PartyRoleCustomer)
	require.NoError(t, err)

	require.Equal(t, len(first.Messages), len(second.Messages))
	for i := range first.Messages {
		assert.Equal(t, first.Messages[i].Seq, second.Messages[i].Seq)
		assert.Equal(t, first.Messages[i].Body, second.Messages[i].Body)
	}
}

func TestPollAcknowledgesUpToCursor(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")
	env.appendN(t, session, domain.SenderTypeCustomer, 3)

	unread, err := env.messages.UnreadCount(context.Background(), session.ID, domain.PartyRoleAgent)
	require.NoError(t, err)
	require.Equal(t, 4, unread)

	_, err = env.gateway.Poll(context.Background(), session.PublicID, 2, domain.PartyRoleAgent)
	require.NoError(t, err)

	unread, err = env.messages.UnreadCount(context.Background(), session.ID, domain.PartyRoleAgent)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)
}

func TestPollBoundsTheWindow(t *testing.T) {
	sessions := repository.NewMemorySessionRepository()
	messages := repository.NewMemoryMessageRepository()
	agents := repository.NewMemoryAgentRepository()
	locks := service.NewSessionLocks()
	registry := service.NewSessionRegistry(service.RegistryDependencies{
		SessionRepo: sessions,
		MessageRepo: messages,
		AgentRepo:   agents,
		Locks:       locks,
		Dispatcher:  events.NewInMemoryDispatcher(),
	})
	store := service.NewMessageStore(service.StoreDependencies{
		SessionRepo: sessions,
		MessageRepo: messages,
		Locks:       locks,
	})
	gateway := service.NewSyncGateway(registry, store, messages, 3)

	session, _, err := registry.StartSession(context.Background(), service.StartSessionInput{
		CustomerName:   "Ada",
		InitialMessage: "hi",
	})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := store.Append(context.Background(), service.AppendInput{
			SessionPublicID: session.PublicID,
			SenderType:      domain.SenderTypeAgent,
			Body:            fmt.Sprintf("msg %d", i),
		})
		require.NoError(t, err)
	}

	// A lagging client drains the backlog across successive polls.
	var cursor int64
	total := 0
	for {
		result, err := gateway.Poll(context.Background(), session.PublicID, cursor, domain.PartyRoleCustomer)
		require.NoError(t, err)
		if len(result.Messages) == 0 {
			break
		}
		assert.LessOrEqual(t, len(result.Messages), 3)
		total += len(result.Messages)
		cursor = result.Messages[len(result.Messages)-1].Seq
	}
	assert.Equal(t, 11, total)
}

func TestPollUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.gateway.Poll(context.Background(), "CHT-MISSING", 0, domain.PartyRoleCustomer)
	assert.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))
}

func TestListSessionsByStatusOrdersWaitingQueue(t *testing.T) {
	env := newTestEnv(t)

	low := env.startSession(t, "billing", domain.SessionPriorityLow, "low")
	time.Sleep(2 * time.Millisecond)
	urgentOld := env.startSession(t, "billing", domain.SessionPriorityUrgent, "urgent old")
	time.Sleep(2 * time.Millisecond)
	urgentNew := env.startSession(t, "billing", domain.SessionPriorityUrgent, "urgent new")

	items, err := env.gateway.ListSessionsByStatus(context.Background(), domain.SessionStatusWaiting, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, urgentOld.PublicID, items[0].Session.PublicID)
	assert.Equal(t, urgentNew.PublicID, items[1].Session.PublicID)
	assert.Equal(t, low.PublicID, items[2].Session.PublicID)
}

func TestListSessionsByStatusReportsAgentUnread(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")
	env.appendN(t, session, domain.SenderTypeCustomer, 2)

	items, err := env.gateway.ListSessionsByStatus(context.Background(), domain.SessionStatusWaiting, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Unread)

	// After the agent polls through the log the count drops to zero.
	_, err = env.gateway.Poll(context.Background(), session.PublicID, 3, domain.PartyRoleAgent)
	require.NoError(t, err)

	items, err = env.gateway.ListSessionsByStatus(context.Background(), domain.SessionStatusWaiting, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].Unread)
}

func TestListSessionsByStatusFiltersTenant(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.registry.StartSession(context.Background(), service.StartSessionInput{
		TenantID:       strPtr("acme"),
		CustomerName:   "Ada",
		InitialMessage: "hi",
	})
	require.NoError(t, err)
	_, _, err = env.registry.StartSession(context.Background(), service.StartSessionInput{
		TenantID:       strPtr("globex"),
		CustomerName:   "Bob",
		InitialMessage: "hello",
	})
	require.NoError(t, err)

	items, err := env.gateway.ListSessionsByStatus(context.Background(), domain.SessionStatusWaiting, strPtr("acme"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Session.TenantID)
	assert.Equal(t, "acme", *items[0].Session.TenantID)
}
