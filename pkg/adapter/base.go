package adapter

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/clients"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/logger"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/ratelimit"
)

// emaAlpha is the weight of the newest sample in the response time average
const emaAlpha = 0.2

// BaseAdapter provides the shared adapter machinery: lifecycle state
// machine, token-bucket admission, circuit breaking, connection statistics,
// and error classification. Concrete adapters embed it and route their
// retrieval calls through Execute.
type BaseAdapter struct {
	cfg    config.SourceConfig
	rel    config.ReliabilityConfig
	logger *zap.Logger

	limiter *ratelimit.TokenBucket
	breaker *clients.CircuitBreaker

	lifecycle Lifecycle
	connected bool
	conn      ConnectionInfo
	mu        sync.Mutex
}

// NewBaseAdapter creates the shared adapter state for a source. The adapter
// starts Uninitialized; Initialize allocates the bucket and statistics.
func NewBaseAdapter(cfg config.SourceConfig, rel config.ReliabilityConfig) *BaseAdapter {
	return &BaseAdapter{
		cfg:    cfg,
		rel:    rel,
		logger: logger.Get().With(zap.String("source", cfg.Name), zap.String("adapter_type", cfg.AdapterType)),
	}
}

// Name returns the source name
func (b *BaseAdapter) Name() string {
	return b.cfg.Name
}

// Type returns the adapter type key
func (b *BaseAdapter) Type() string {
	return b.cfg.AdapterType
}

// Config returns the immutable source configuration
func (b *BaseAdapter) Config() config.SourceConfig {
	return b.cfg
}

// Logger returns the source-scoped logger
func (b *BaseAdapter) Logger() *zap.Logger {
	return b.logger
}

// Initialize allocates the token bucket and connection statistics and
// transitions to Initialized with connectivity down. Calling it again while
// initialized is a no-op; calling it on a closed adapter fails.
func (b *BaseAdapter) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.lifecycle {
	case LifecycleInitialized:
		return nil
	case LifecycleClosed:
		return b.closedErrLocked("initialize")
	}

	b.limiter = ratelimit.NewTokenBucket(b.cfg.RateLimitPerMinute, b.cfg.RateWindow())
	if b.rel.CircuitBreaker {
		b.breaker = clients.NewCircuitBreaker(clients.DefaultCircuitBreakerConfig(), b.logger)
	}
	b.conn = ConnectionInfo{SourceName: b.cfg.Name}
	b.lifecycle = LifecycleInitialized
	b.connected = false

	b.logger.Info("adapter initialized",
		zap.Int("rate_limit_per_minute", b.cfg.RateLimitPerMinute),
		zap.Duration("timeout", b.cfg.Timeout()))
	return nil
}

// MarkConnected flips the connectivity flag after a concrete adapter has
// established or dropped its transport.
func (b *BaseAdapter) MarkConnected(up bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lifecycle != LifecycleInitialized {
		if b.lifecycle == LifecycleClosed {
			return b.closedErrLocked("connect")
		}
		return errors.New(errors.KindConfig, "adapter is not initialized").
			WithContext(b.cfg.Name, "connect")
	}

	b.connected = up
	b.conn.IsActive = up
	return nil
}

// Connected reports the connectivity flag
func (b *BaseAdapter) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// LifecycleState returns the current lifecycle state
func (b *BaseAdapter) LifecycleState() Lifecycle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lifecycle
}

// Close transitions to Closed and forces connectivity down. Idempotent.
func (b *BaseAdapter) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lifecycle == LifecycleClosed {
		return nil
	}

	b.lifecycle = LifecycleClosed
	b.connected = false
	b.conn.IsActive = false

	b.logger.Info("adapter closed",
		zap.Int64("requests", b.conn.RequestCount),
		zap.Int64("errors", b.conn.ErrorCount))
	return nil
}

// Execute runs one retrieval operation: it verifies the adapter is
// initialized and connected, acquires a rate limiter token, bounds the call
// by the configured timeout, routes it through the circuit breaker, updates
// connection statistics, and classifies any failure. A canceled token wait
// consumes nothing and is recorded as a timeout failure.
func (b *BaseAdapter) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	limiter, err := b.ready(operation)
	if err != nil {
		return err
	}

	if err := limiter.Acquire(ctx); err != nil {
		b.recordOutcome(0, false)
		return errors.Wrap(err, errors.KindTimeout, "rate limiter wait canceled").
			WithContext(b.cfg.Name, operation)
	}

	opCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout())
	defer cancel()

	start := time.Now()
	opErr := b.protect(func() error { return fn(opCtx) })
	elapsed := time.Since(start)

	b.recordOutcome(elapsed, opErr == nil)

	if opErr != nil {
		var open clients.ErrCircuitOpen
		if stderrors.As(opErr, &open) {
			opErr = errors.Wrap(opErr, errors.KindConnection, "circuit breaker open").
				WithContext(b.cfg.Name, operation)
		}
		info := errors.Classify(opErr, b.cfg.Name, operation)
		b.logger.Warn("operation failed",
			zap.String("operation", operation),
			zap.String("kind", string(info.Kind)),
			zap.String("severity", info.Severity.String()),
			zap.Bool("retryable", info.ShouldRetry),
			zap.Duration("elapsed", elapsed),
			zap.Error(opErr))
		return info
	}

	b.logger.Debug("operation completed",
		zap.String("operation", operation),
		zap.Duration("elapsed", elapsed))
	return nil
}

// Probe runs a lightweight health check without consuming a data token.
// It requires an initialized adapter but not a connected one, so the
// monitor can probe sources whose transport is down.
func (b *BaseAdapter) Probe(ctx context.Context, fn func(ctx context.Context) error) (ProbeResult, error) {
	b.mu.Lock()
	if b.lifecycle != LifecycleInitialized {
		defer b.mu.Unlock()
		if b.lifecycle == LifecycleClosed {
			return ProbeResult{CheckedAt: time.Now()}, b.closedErrLocked("health_check")
		}
		return ProbeResult{CheckedAt: time.Now()}, errors.New(errors.KindConfig, "adapter is not initialized").
			WithContext(b.cfg.Name, "health_check")
	}
	b.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout())
	defer cancel()

	start := time.Now()
	err := fn(probeCtx)
	elapsed := time.Since(start)

	result := ProbeResult{
		Healthy:      err == nil,
		ResponseTime: elapsed,
		CheckedAt:    time.Now(),
	}
	if err != nil {
		return result, errors.Classify(err, b.cfg.Name, "health_check")
	}
	return result, nil
}

// Stats returns a read-only projection of the adapter state
func (b *BaseAdapter) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		SourceName:  b.cfg.Name,
		AdapterType: b.cfg.AdapterType,
		Lifecycle:   b.lifecycle.String(),
		Connected:   b.connected,
		Connection:  b.conn,
	}
	if b.limiter != nil {
		stats.RateLimiter = b.limiter.GetStats()
	}
	return stats
}

// ConnectionSnapshot returns a copy of the connection statistics
func (b *BaseAdapter) ConnectionSnapshot() ConnectionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

// ready verifies the adapter can serve a retrieval operation and returns
// the limiter so Acquire happens outside the state lock.
func (b *BaseAdapter) ready(operation string) (*ratelimit.TokenBucket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.lifecycle == LifecycleClosed:
		return nil, b.closedErrLocked(operation)
	case b.lifecycle != LifecycleInitialized:
		return nil, errors.New(errors.KindConfig, "adapter is not initialized").
			WithContext(b.cfg.Name, operation)
	case !b.connected:
		return nil, errors.New(errors.KindConnection, "adapter is not connected").
			WithContext(b.cfg.Name, operation)
	}
	return b.limiter, nil
}

// protect routes fn through the circuit breaker when one is configured
func (b *BaseAdapter) protect(fn func() error) error {
	if b.breaker != nil {
		return b.breaker.Execute(fn)
	}
	return fn()
}

// recordOutcome updates connection statistics after one attempt. The
// response time average is an exponential moving average.
func (b *BaseAdapter) recordOutcome(elapsed time.Duration, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conn.RequestCount++
	b.conn.LastRequestAt = time.Now()
	if !success {
		b.conn.ErrorCount++
	}

	if elapsed > 0 {
		if b.conn.AverageResponseTime == 0 {
			b.conn.AverageResponseTime = elapsed
		} else {
			prev := float64(b.conn.AverageResponseTime)
			b.conn.AverageResponseTime = time.Duration(prev*(1-emaAlpha) + float64(elapsed)*emaAlpha)
		}
	}
}

// closedErrLocked builds the classified closed-adapter error
func (b *BaseAdapter) closedErrLocked(operation string) error {
	return errors.New(errors.KindConfig, "adapter is closed").
		WithContext(b.cfg.Name, operation)
}
