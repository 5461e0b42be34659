// Package ratelimit implements token-bucket rate limiting for the ingestion
// endpoint, keyed by delivery source. Webhook providers retry on 429, so
// shedding a burst here costs nothing but latency.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-source token bucket limiter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	perSec   float64
}

// New creates a rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether the source may proceed at the given rate in events
// per second. A rate of 0 or less means unlimited. Buckets start full, so a
// quiet source gets its full burst immediately.
func (l *Limiter) Allow(source string, perSec int) bool {
	if perSec <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[source]
	if !ok {
		b = &bucket{
			tokens:   float64(perSec),
			lastFill: time.Now(),
			perSec:   float64(perSec),
		}
		l.buckets[source] = b
	}

	now := time.Now()
	b.tokens += now.Sub(b.lastFill).Seconds() * b.perSec
	if b.tokens > b.perSec {
		b.tokens = b.perSec
	}
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Reset clears the state for a source.
func (l *Limiter) Reset(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, source)
}
