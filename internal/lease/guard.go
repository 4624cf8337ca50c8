// Package lease provides in-flight guards that keep two syncs of the same
// allocation from running at once.
package lease

import (
	"context"
	"sync"
)

// Guard hands out exclusive, short-lived claims on a key.
type Guard interface {
	// TryAcquire claims key without blocking. When acquired is false the
	// key is held elsewhere and release is nil.
	TryAcquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// Local is a process-local Guard. Claims last until released.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// Held reports whether key is currently claimed.
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
