package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "chat:presence:agent:"

// PresenceCache mirrors agent presence into Redis with a TTL. The store
// remains the source of truth; the cache exists so operational tooling
// can read liveness without hitting Postgres, and so a crashed console
// that stops heartbeating visibly expires.
type PresenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceCache builds the cache on an existing Redis wrapper. Returns
// nil when Redis is not configured; callers treat a nil cache as absent.
func NewPresenceCache(r *Redis, ttl time.Duration) *PresenceCache {
	if r == nil || r.Client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &PresenceCache{client: r.Client, ttl: ttl}
}

// Heartbeat records the agent's presence flag with expiry.
func (p *PresenceCache) Heartbeat(ctx context.Context, agentID string, online bool) error {
	if p == nil || p.client == nil {
		return errors.New("presence cache not configured")
	}
	key := presenceKeyPrefix + agentID
	if !online {
		return p.client.Del(ctx, key).Err()
	}
	return p.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), p.ttl).Err()
}

// IsFresh reports whether a non-expired heartbeat exists for the agent.
func (p *PresenceCache) IsFresh(ctx context.Context, agentID string) (bool, error) {
	if p == nil || p.client == nil {
		return false, errors.New("presence cache not configured")
	}
	count, err := p.client.Exists(ctx, presenceKeyPrefix+agentID).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
