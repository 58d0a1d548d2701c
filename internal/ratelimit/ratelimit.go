// Package ratelimit implements per-client request rate limiting with
// lazy-refill token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	RetryAfterSeconds float64
}

// bucket is a token bucket with lazy refill (no background goroutine).
type bucket struct {
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
}

func newBucket(limit int64) *bucket {
	return &bucket{
		tokens:   float64(limit),
		max:      float64(limit),
		rate:     float64(limit) / 60.0, // per-minute limit -> per-second rate
		lastFill: time.Now(),
	}
}

// refill adds tokens based on elapsed time since last refill.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// retryAfter returns seconds until one token is available.
func (b *bucket) retryAfter() float64 {
	if b.tokens >= 1 {
		return 0
	}
	return (1 - b.tokens) / b.rate
}

// Limiter holds the request bucket for a single client.
type Limiter struct {
	mu       sync.Mutex
	rpm      int64
	bucket   *bucket // nil if unlimited
	lastUsed time.Time
}

func newLimiter(rpm int64) *Limiter {
	l := &Limiter{rpm: rpm, lastUsed: time.Now()}
	if rpm > 0 {
		l.bucket = newBucket(rpm)
	}
	return l
}

// Allow consumes one request token.
func (l *Limiter) Allow() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.lastUsed = now

	if l.bucket == nil {
		return Result{Allowed: true}
	}

	l.bucket.refill(now)
	if l.bucket.tokens >= 1 {
		l.bucket.tokens--
		return Result{
			Allowed:   true,
			Limit:     l.rpm,
			Remaining: int64(l.bucket.tokens),
		}
	}
	return Result{
		Allowed:           false,
		Limit:             l.rpm,
		Remaining:         0,
		RetryAfterSeconds: l.bucket.retryAfter(),
	}
}

// Registry manages per-client Limiters keyed by client identifier
// (typically the remote IP).
type Registry struct {
	mu       sync.RWMutex
	rpm      int64
	limiters map[string]*Limiter
}

// NewRegistry creates a registry handing out limiters with the given RPM.
// An rpm of 0 means unlimited.
func NewRegistry(rpm int64) *Registry {
	return &Registry{
		rpm:      rpm,
		limiters: make(map[string]*Limiter),
	}
}

// Allow consumes a token from the client's limiter, creating it on first use.
func (r *Registry) Allow(client string) Result {
	r.mu.RLock()
	l, ok := r.limiters[client]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		// Double-check after acquiring write lock.
		if l, ok = r.limiters[client]; !ok {
			l = newLimiter(r.rpm)
			r.limiters[client] = l
		}
		r.mu.Unlock()
	}
	return l.Allow()
}

// EvictStale removes limiters not used since cutoff and returns the count.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, l := range r.limiters {
		l.mu.Lock()
		stale := l.lastUsed.Before(cutoff)
		l.mu.Unlock()
		if stale {
			delete(r.limiters, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}
