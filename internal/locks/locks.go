package locks

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld means another command is already in flight for the slug. Callers
// fail fast with a conflict rather than queueing.
var ErrHeld = errors.New("locks: slug already locked")

// SlugLocker single-flights orchestrator steps per slug. TryAcquire never
// blocks: it returns a release func on success or ErrHeld when the slug is
// busy. Implementations may be process-local or shared (Redis); the
// orchestrator does not care which.
type SlugLocker interface {
	TryAcquire(ctx context.Context, slug string) (release func(), err error)
}

// MemoryLocker is the in-process implementation: a plain set of held slugs.
// Sufficient for the single-process deployment model.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, slug string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[slug]; ok {
		return nil, ErrHeld
	}
	l.held[slug] = struct{}{}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, slug)
	}, nil
}
