package locks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSingleFlight(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, err := l.TryAcquire(ctx, "fuji")
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "fuji")
	require.ErrorIs(t, err, ErrHeld)

	// a different slug is independent
	release2, err := l.TryAcquire(ctx, "kyoto")
	require.NoError(t, err)
	release2()

	release()
	release3, err := l.TryAcquire(ctx, "fuji")
	require.NoError(t, err)
	release3()
}
