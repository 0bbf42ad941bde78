package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HostLimiter enforces a minimum delay between requests to the same host.
// The fetch and scrape stages share one instance so a batch touching the same
// job board stays polite.
type HostLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: hostname
	minDelay time.Duration
}

// NewHostLimiter creates a limiter that enforces minDelay between consecutive
// requests to the same host. A zero minDelay disables waiting.
func NewHostLimiter(minDelay time.Duration) *HostLimiter {
	return &HostLimiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request to host.
// Returns an error if the context is cancelled while waiting.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l.minDelay <= 0 {
		return nil
	}

	l.mu.Lock()
	last, ok := l.lastCall[host]
	now := time.Now()

	if !ok {
		// First request for this host — no wait needed.
		l.lastCall[host] = now
		l.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= l.minDelay {
		// Enough time has passed — proceed immediately.
		l.lastCall[host] = now
		l.mu.Unlock()
		return nil
	}

	// Need to wait for the remainder.
	remaining := l.minDelay - elapsed
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", host, ctx.Err())
	case <-time.After(remaining):
	}

	// Record the actual time after waiting.
	l.mu.Lock()
	l.lastCall[host] = time.Now()
	l.mu.Unlock()

	return nil
}
