package deletes

import (
	"context"
	"sync"
)

// specLocks serializes runs per top-level specification name.
type specLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newSpecLocks() *specLocks {
	return &specLocks{slots: map[string]chan struct{}{}}
}

func (l *specLocks) acquire(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[name] = slot
	}
	l.mu.Unlock()

	release := func() { <-slot }
	select {
	case slot <- struct{}{}:
		return release, nil
	default:
	}
	select {
	case slot <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
