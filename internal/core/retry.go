package core

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
)

// RetryPolicy defines the backoff behavior for retryable source failures
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy builds a policy from the reliability configuration
func NewRetryPolicy(rel config.ReliabilityConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     rel.RetryAttempts,
		InitialDelay:    rel.RetryDelay,
		MaxDelay:        rel.MaxRetryDelay,
		Multiplier:      rel.RetryMultiplier,
		RandomizeFactor: 0.25,
	}
}

// NoRetryPolicy returns a policy that runs the operation once
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1}
}

// ExecuteWithCondition runs fn, retrying with jittered exponential backoff
// while shouldRetry approves the error. Non-retryable errors surface
// immediately; the wait between attempts is cancellable.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(rp.calculateDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// calculateDelay returns the jittered exponential delay for an attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		delay = delay - delta + rand.Float64()*2*delta
	}

	return time.Duration(delay)
}

// GetDelay previews the delay for a specific attempt
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	return rp.calculateDelay(attempt)
}
