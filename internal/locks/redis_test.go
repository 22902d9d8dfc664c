package locks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "", time.Minute), mr
}

func TestRedisLockerSingleFlight(t *testing.T) {
	l, _ := newRedisLocker(t)
	ctx := context.Background()

	release, err := l.TryAcquire(ctx, "fuji")
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "fuji")
	require.ErrorIs(t, err, ErrHeld)

	release()
	release2, err := l.TryAcquire(ctx, "fuji")
	require.NoError(t, err)
	release2()
}

func TestRedisLockerTTLExpiry(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	release, err := l.TryAcquire(ctx, "fuji")
	require.NoError(t, err)

	// a crashed holder never calls release; the TTL frees the slug
	mr.FastForward(2 * time.Minute)
	release2, err := l.TryAcquire(ctx, "fuji")
	require.NoError(t, err)

	// the stale release must not delete the new holder's lock
	release()
	_, err = l.TryAcquire(ctx, "fuji")
	require.ErrorIs(t, err, ErrHeld)
	release2()
}
