package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/repository"
	"github.com/spec-kit/support-chat-service/internal/service"
)

// WaitingReaper closes sessions stuck in WAITING past the configured
// timeout with a timed_out reason, so abandoned widget sessions do not
// pile up in the agent queue forever.
type WaitingReaper struct {
	registry *service.SessionRegistry
	sessions repository.SessionRepository
	logger   *zap.Logger
	timeout  time.Duration
	interval time.Duration
}

// NewWaitingReaper constructs the reaper. A zero timeout disables it.
func NewWaitingReaper(registry *service.SessionRegistry, sessions repository.SessionRepository, logger *zap.Logger, timeout, interval time.Duration) *WaitingReaper {
	return &WaitingReaper{
		registry: registry,
		sessions: sessions,
		logger:   logger,
		timeout:  timeout,
		interval: interval,
	}
}

// Run sweeps on the configured interval until the context ends.
func (w *WaitingReaper) Run(ctx context.Context) {
	if w.timeout <= 0 {
		w.logger.Info("waiting reaper disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep closes every WAITING session created before the cutoff. Sessions
// claimed between the listing and the close lose the race cleanly: the
// registry rejects the stale transition and the sweep moves on.
func (w *WaitingReaper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.timeout)
	waiting := domain.SessionStatusWaiting
	overdue, err := w.sessions.ListWithFilter(ctx, repository.SessionFilter{
		Status:        &waiting,
		CreatedBefore: &cutoff,
	})
	if err != nil {
		w.logger.Error("reaper listing failed", zap.Error(err))
		return
	}

	for _, session := range overdue {
		_, err := w.registry.Close(ctx, session.PublicID, service.CloseInput{
			Reason: domain.CloseReasonTimedOut,
		})
		if err != nil {
			w.logger.Debug("reaper skipped session",
				zap.String("session_id", session.PublicID),
				zap.Error(err))
			continue
		}
		w.logger.Info("waiting session timed out",
			zap.String("session_id", session.PublicID),
			zap.Duration("waited", time.Since(session.CreatedAt)))
	}
}
