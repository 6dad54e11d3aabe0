package repository

import (
	"context"
	"sync"
)

// memLocks is the in-process fallback for stores with no file to lock,
// such as an in-memory database. One buffered channel per scope.
type memLocks struct {
	mu    sync.Mutex
	slots map[LockScope]chan struct{}
}

func (l *memLocks) lock(ctx context.Context, scope LockScope) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[LockScope]chan struct{})
	}
	slot, ok := l.slots[scope]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[scope] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-slot }) }, nil
}
