package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultReplayTTL = 24 * time.Hour
	replayKeyPrefix  = "outreach:webhook:"
)

// ReplayGuard reports whether a delivery was already seen. Forget releases a body
// whose processing failed so the sender's retry is accepted.
type ReplayGuard interface {
	FirstSeen(ctx context.Context, body []byte) (bool, error)
	Forget(ctx context.Context, body []byte) error
}

// RedisReplayGuard remembers body hashes in Redis for ttl.
type RedisReplayGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReplayGuard(client *redis.Client, ttl time.Duration) *RedisReplayGuard {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &RedisReplayGuard{client: client, ttl: ttl}
}

func (g *RedisReplayGuard) FirstSeen(ctx context.Context, body []byte) (bool, error) {
	return g.client.SetNX(ctx, replayKey(body), 1, g.ttl).Result()
}

func (g *RedisReplayGuard) Forget(ctx context.Context, body []byte) error {
	return g.client.Del(ctx, replayKey(body)).Err()
}

func replayKey(body []byte) string {
	sum := sha256.Sum256(body)
	return replayKeyPrefix + hex.EncodeToString(sum[:])
}

var _ ReplayGuard = (*RedisReplayGuard)(nil)
