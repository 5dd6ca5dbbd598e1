// Package ratelimit bounds how fast a caller may submit jobs. The local
// limiter is a fixed-window counter per key, good enough for a single
// process; the Redis-backed limiter shares the same window across
// multiple instances of this service sitting behind one endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a request identified by key is allowed right
// now. retryAfter is only meaningful when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Local is a fixed-window counter per key, held in memory. Safe for
// concurrent use.
type Local struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*bucket
}

type bucket struct {
	count     int
	windowEnd time.Time
}

func NewLocal(limit int, window time.Duration) *Local {
	return &Local{
		limit:   limit,
		window:  window,
		clients: make(map[string]*bucket),
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[key]
	if !ok || now.After(b.windowEnd) {
		l.clients[key] = &bucket{count: 1, windowEnd: now.Add(l.window)}
		return true, 0, nil
	}

	if b.count >= l.limit {
		retryAfter := time.Until(b.windowEnd)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	b.count++
	return true, 0, nil
}
