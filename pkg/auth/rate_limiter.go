package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides rate limiting functionality
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// KeyedLimiter keeps one token bucket per key in process memory.
// Idle buckets are dropped by a background sweep.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows requestsPerMinute per key with a burst of the same size.
func NewKeyedLimiter(requestsPerMinute int) *KeyedLimiter {
	l := &KeyedLimiter{
		limiters: make(map[string]*keyedEntry),
		limit:    rate.Every(time.Minute / time.Duration(max(requestsPerMinute, 1))),
		burst:    max(requestsPerMinute, 1),
		idleTTL:  time.Hour,
	}
	go l.sweep(5 * time.Minute)
	return l
}

// Allow checks if a request is allowed
func (l *KeyedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow(), nil
}

// Reset resets the rate limit for a key
func (l *KeyedLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
	return nil
}

func (l *KeyedLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-l.idleTTL)
		for key, e := range l.limiters {
			if e.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.mu.Unlock()
	}
}

// NewIPRateLimiter creates a limiter keyed by client IP
func NewIPRateLimiter(requestsPerMinute int) RateLimiter {
	return NewKeyedLimiter(requestsPerMinute)
}

// NewUserRateLimiter creates a limiter keyed by owner id
func NewUserRateLimiter(requestsPerMinute int) RateLimiter {
	return NewKeyedLimiter(requestsPerMinute)
}
