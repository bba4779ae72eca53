package service_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/support-chat-service/internal/service"
)

func TestSessionLocksSerializeSameSession(t *testing.T) {
	locks := service.NewSessionLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("session-1")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestSessionLocksIndependentSessions(t *testing.T) {
	locks := service.NewSessionLocks()

	releaseA := locks.Acquire("session-a")
	defer releaseA()

	// Holding one session's lock must not block another session.
	done := make(chan struct{})
	go func() {
		release := locks.Acquire("session-b")
		release()
		close(done)
	}()
	<-done
}

func TestSessionLocksReleaseIsIdempotent(t *testing.T) {
	locks := service.NewSessionLocks()

	release := locks.Acquire("session-1")
	release()
	release()

	again := locks.Acquire("session-1")
	again()
}
