// Package ratelimit implements per-seller, per-platform token buckets for
// outbound API calls. Buckets refill continuously and honor provider
// throttle hints (Retry-After) as a hard hold on top of normal refill.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a continuously refilling token bucket. A throttle hold set via
// Throttle suspends token grants until the hold expires, regardless of how
// many tokens have accumulated.
type Bucket struct {
	mu sync.Mutex

	ratePerSec float64
	capacity   float64

	tokens         float64
	lastRefill     time.Time
	throttledUntil time.Time

	now func() time.Time
}

// NewBucket creates a full bucket granting ratePerSec tokens per second
// with the given burst capacity.
func NewBucket(ratePerSec float64, burst int) *Bucket {
	now := time.Now()
	return &Bucket{
		ratePerSec: ratePerSec,
		capacity:   float64(burst),
		tokens:     float64(burst),
		lastRefill: now,
		now:        time.Now,
	}
}

// refill credits tokens accrued since the last refill. Caller holds mu.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.ratePerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// take attempts to consume one token, returning zero on success or the
// duration to wait before the next attempt.
func (b *Bucket) take() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if hold := b.throttledUntil.Sub(now); hold > 0 {
		return hold
	}
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	needed := (1 - b.tokens) / b.ratePerSec
	return time.Duration(needed * float64(time.Second))
}

// Acquire blocks until a token is granted or the context is done.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		wait := b.take()
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire consumes a token without blocking, reporting whether one was
// available.
func (b *Bucket) TryAcquire() bool {
	return b.take() == 0
}

// Throttle drains the bucket and installs a hold for the given duration,
// typically from an upstream Retry-After. Accumulated tokens are discarded
// and refill resumes only once the hold expires, so callers cannot burst at
// a provider that just throttled us. An existing longer hold is kept.
func (b *Bucket) Throttle(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	until := b.now().Add(d)
	if until.After(b.throttledUntil) {
		b.throttledUntil = until
	}
	b.tokens = 0
	b.lastRefill = b.throttledUntil
}

// Throttled reports whether a hold is currently in effect.
func (b *Bucket) Throttled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.throttledUntil)
}
