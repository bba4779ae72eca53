package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/repository"
	"github.com/spec-kit/support-chat-service/internal/service"
)

type testEnv struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
	agents   repository.AgentRepository
	registry *service.SessionRegistry
	pool     *service.AgentPool
	store    *service.MessageStore
	gateway  *service.SyncGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sessions := repository.NewMemorySessionRepository()
	messages := repository.NewMemoryMessageRepository()
	agents := repository.NewMemoryAgentRepository()
	locks := service.NewSessionLocks()
	dispatcher := events.NewInMemoryDispatcher()

	registry := service.NewSessionRegistry(service.RegistryDependencies{
		SessionRepo: sessions,
		MessageRepo: messages,
		AgentRepo:   agents,
		Locks:       locks,
		Dispatcher:  dispatcher,
	})
	pool := service.NewAgentPool(service.PoolDependencies{
		AgentRepo:   agents,
		SessionRepo: sessions,
		Registry:    registry,
		Logger:      zap.NewNop(),
	})
	store := service.NewMessageStore(service.StoreDependencies{
		SessionRepo: sessions,
		MessageRepo: messages,
		Locks:       locks,
		Dispatcher:  dispatcher,
	})
	gateway := service.NewSyncGateway(registry, store, messages, 0)

	return &testEnv{
		sessions: sessions,
		messages: messages,
		agents:   agents,
		registry: registry,
		pool:     pool,
		store:    store,
		gateway:  gateway,
	}
}

func (e *testEnv) seedAgent(t *testing.T, name string, capabilities []string, maxChats int) *domain.Agent {
	t.Helper()

	agent := &domain.Agent{
		Email:              name + "@example.com",
		DisplayName:        name,
		Capabilities:       capabilities,
		MaxConcurrentChats: maxChats,
	}
	require.NoError(t, e.agents.Create(context.Background(), agent))
	require.NoError(t, e.agents.SetPresence(context.Background(), agent.ID, true, time.Now()))

	stored, err := e.agents.GetByID(context.Background(), agent.ID)
	require.NoError(t, err)
	return stored
}

func (e *testEnv) startSession(t *testing.T, category string, priority domain.SessionPriority, body string) *domain.Session {
	t.Helper()

	session, _, err := e.registry.StartSession(context.Background(), service.StartSessionInput{
		CustomerName:   "Ada",
		Category:       category,
		Priority:       priority,
		InitialMessage: body,
	})
	require.NoError(t, err)
	return session
}

func (e *testEnv) agentLoad(t *testing.T, agentID string) int {
	t.Helper()

	agent, err := e.agents.GetByID(context.Background(), agentID)
	require.NoError(t, err)
	return agent.CurrentLoad
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
