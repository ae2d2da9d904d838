package memory

import (
	"context"
	"sync"
	"time"

	"unimem/application/ports"
)

// Lock is a process-local ports.DistributedLock with expiring keys.
type Lock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

var _ ports.DistributedLock = (*Lock)(nil)

func NewLock() *Lock {
	return &Lock{held: make(map[string]time.Time), clock: time.Now}
}

func (l *Lock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *Lock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
