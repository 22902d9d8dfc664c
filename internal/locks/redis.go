package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/printloom/go-services/pkg/logger"
)

// RedisLocker is an advisory SET NX + TTL lock keyed by slug, for deployments
// where more than one process may drive the same store. The TTL bounds how
// long a crashed holder can block a slug.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "publish-lock:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, slug string) (func(), error) {
	key := l.prefix + slug
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("locks: redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		// only delete the lock if we still own it (TTL may have expired and
		// another holder taken over)
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		if err := l.client.Eval(context.Background(), script, []string{key}, token).Err(); err != nil {
			logger.Warnf("failed to release slug lock %s: %v", key, err)
		}
	}, nil
}
