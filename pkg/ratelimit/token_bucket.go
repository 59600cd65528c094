// Package ratelimit provides per-source token-bucket admission control
package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// zeroCapacityDelay is the poll interval for buckets configured with zero
// capacity, which admit no traffic and park every caller until cancellation.
const zeroCapacityDelay = 100 * time.Millisecond

// Stats provides a snapshot of limiter state for monitoring
type Stats struct {
	Capacity        int           `json:"capacity"`
	Window          time.Duration `json:"window"`
	CurrentTokens   float64       `json:"current_tokens"`
	LastRefill      time.Time     `json:"last_refill"`
	AllowedRequests int64         `json:"allowed_requests"`
	BlockedRequests int64         `json:"blocked_requests"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
}

// TokenBucket implements the token bucket algorithm. Tokens refill
// continuously at capacity/window and are consumed one per admitted request.
// Each adapter owns exactly one bucket; callers waiting in Acquire are
// admitted in arrival order.
type TokenBucket struct {
	capacity int
	window   time.Duration
	rate     float64 // tokens per second

	tokens     float64
	lastRefill time.Time

	// Stats
	allowedRequests int64
	blockedRequests int64
	totalWaitTime   int64

	// acquireMu serializes waiters so tokens are granted in arrival order.
	// mu guards bucket state and is never held across a sleep.
	acquireMu sync.Mutex
	mu        sync.Mutex
}

// NewTokenBucket creates a bucket holding up to capacity tokens that refill
// over the given window. A zero or negative window defaults to one minute.
// Zero capacity yields a bucket that admits nothing.
func NewTokenBucket(capacity int, window time.Duration) *TokenBucket {
	if window <= 0 {
		window = time.Minute
	}

	tb := &TokenBucket{
		capacity:   capacity,
		window:     window,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
	if capacity > 0 {
		tb.rate = float64(capacity) / window.Seconds()
	}
	return tb
}

// Acquire blocks until a token is available, consumes it, and returns nil.
// Waiters are served in arrival order. On context cancellation it returns
// the context error without consuming a token.
func (tb *TokenBucket) Acquire(ctx context.Context) error {
	start := time.Now()

	tb.acquireMu.Lock()
	defer tb.acquireMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			atomic.AddInt64(&tb.blockedRequests, 1)
			return err
		}

		tb.mu.Lock()
		tb.refill()

		if tb.tokens >= 1.0 {
			tb.tokens--
			tb.mu.Unlock()
			atomic.AddInt64(&tb.allowedRequests, 1)
			atomic.AddInt64(&tb.totalWaitTime, time.Since(start).Nanoseconds())
			return nil
		}

		var wait time.Duration
		if tb.rate > 0 {
			deficit := 1.0 - tb.tokens
			wait = time.Duration(deficit / tb.rate * float64(time.Second))
		} else {
			// Zero-capacity bucket: park and re-check until canceled.
			wait = zeroCapacityDelay
		}
		tb.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			atomic.AddInt64(&tb.blockedRequests, 1)
			return ctx.Err()
		}
	}
}

// RemainingTokens returns the whole tokens currently available without
// consuming one.
func (tb *TokenBucket) RemainingTokens() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return int(math.Floor(tb.tokens))
}

// Capacity returns the configured bucket capacity
func (tb *TokenBucket) Capacity() int {
	return tb.capacity
}

// refill adds tokens for the time elapsed since the last refill.
// Callers must hold mu.
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens += elapsed * tb.rate
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}

	tb.lastRefill = now
}

// GetStats returns a snapshot of limiter statistics
func (tb *TokenBucket) GetStats() Stats {
	tb.mu.Lock()
	tb.refill()
	tokens := tb.tokens
	lastRefill := tb.lastRefill
	tb.mu.Unlock()

	allowed := atomic.LoadInt64(&tb.allowedRequests)
	blocked := atomic.LoadInt64(&tb.blockedRequests)
	totalWait := atomic.LoadInt64(&tb.totalWaitTime)

	avgWait := time.Duration(0)
	if allowed > 0 {
		avgWait = time.Duration(totalWait / allowed)
	}

	return Stats{
		Capacity:        tb.capacity,
		Window:          tb.window,
		CurrentTokens:   tokens,
		LastRefill:      lastRefill,
		AllowedRequests: allowed,
		BlockedRequests: blocked,
		AverageWaitTime: avgWait,
	}
}
