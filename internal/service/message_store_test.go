package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/service"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

func TestAppendAssignsGaplessSequence(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	for i := 2; i <= 5; i++ {
		msg, err := env.store.Append(context.Background(), service.AppendInput{
			SessionPublicID: session.PublicID,
			SenderType:      domain.SenderTypeCustomer,
			SenderName:      "Ada",
			Body:            fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i), msg.Seq)
	}

	msgs, err := env.store.ListSince(context.Background(), session.PublicID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		assert.Equal(t, int64(i+1), msg.Seq)
	}
}

func TestAppendRejectsClosedSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.registry.Close(context.Background(), session.PublicID, service.CloseInput{})
	require.NoError(t, err)

	_, err = env.store.Append(context.Background(), service.AppendInput{
		SessionPublicID: session.PublicID,
		SenderType:      domain.SenderTypeCustomer,
		SenderName:      "Ada",
		Body:            "anyone there?",
	})
	assert.Equal(t, "SESSION_CLOSED", apperrors.CodeOf(err))
}

func TestAppendRejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	_, err := env.store.Append(context.Background(), service.AppendInput{
		SessionPublicID: session.PublicID,
		SenderType:      domain.SenderTypeCustomer,
		Body:            "   \n\t ",
	})
	assert.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))
}

func TestAppendDeduplicatesByClientKey(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	input := service.AppendInput{
		SessionPublicID: session.PublicID,
		SenderType:      domain.SenderTypeCustomer,
		SenderName:      "Ada",
		Body:            "did this go through?",
		ClientKey:       strPtr("send-42"),
	}
	first, err := env.store.Append(context.Background(), input)
	require.NoError(t, err)

	// Retry of the same send returns the original, no second copy.
	retry, err := env.store.Append(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, first.Seq, retry.Seq)
	assert.Equal(t, first.Body, retry.Body)

	msgs, err := env.store.ListSince(context.Background(), session.PublicID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestAppendSameClientKeyDifferentSessions(t *testing.T) {
	env := newTestEnv(t)
	one := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")
	two := env.startSession(t, "billing", domain.SessionPriorityMedium, "hello")

	for _, session := range []*domain.Session{one, two} {
		_, err := env.store.Append(context.Background(), service.AppendInput{
			SessionPublicID: session.PublicID,
			SenderType:      domain.SenderTypeCustomer,
			Body:            "same key",
			ClientKey:       strPtr("send-1"),
		})
		require.NoError(t, err)
	}

	msgs, err := env.store.ListSince(context.Background(), two.PublicID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestAppendBumpsLastMessageAt(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	before, err := env.registry.GetSession(context.Background(), session.PublicID)
	require.NoError(t, err)

	msg, err := env.store.Append(context.Background(), service.AppendInput{
		SessionPublicID: session.PublicID,
		SenderType:      domain.SenderTypeAgent,
		SenderName:      "Sam",
		Body:            "how can I help?",
	})
	require.NoError(t, err)

	after, err := env.registry.GetSession(context.Background(), session.PublicID)
	require.NoError(t, err)
	assert.False(t, after.LastMessageAt.Before(before.LastMessageAt))
	assert.True(t, after.LastMessageAt.Equal(msg.CreatedAt))
}

func TestAppendSeedsSenderRead(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t, "billing", domain.SessionPriorityMedium, "hi")

	msg, err := env.store.Append(context.Background(), service.AppendInput{
		SessionPublicID: session.PublicID,
		SenderType:      domain.SenderTypeAgent,
		SenderName:      "Sam",
		Body:            "hello",
	})
	require.NoError(t, err)
	assert.True(t, msg.ReadByRole(domain.PartyRoleAgent))
	assert.False(t, msg.ReadByRole(domain.PartyRoleCustomer))
}

func TestAppendUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store.Append(context.Background(), service.AppendInput{
		SessionPublicID: "CHT-MISSING",
		SenderType:      domain.SenderTypeCustomer,
		Body:            "hello",
	})
	assert.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))
}
