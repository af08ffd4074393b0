package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Lock serializes requests and enforces a minimum wait between them.
type Lock interface {
	// Lock blocks until the rate limit allows a new request and
	// returns the function that releases it.
	Lock(ctx context.Context) func()
}

type lock struct {
	mu   sync.Mutex
	wait time.Duration
	last time.Time
}

// New creates a Lock with the given minimum wait between requests.
func New(wait time.Duration) Lock {
	return &lock{wait: wait}
}

func (l *lock) Lock(ctx context.Context) func() {
	l.mu.Lock()
	elapsed := time.Since(l.last)
	if remaining := l.wait - elapsed; remaining > 0 {
		t := time.NewTimer(remaining)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	return func() {
		l.last = time.Now()
		l.mu.Unlock()
	}
}
