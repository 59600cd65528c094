package adapter

import (
	"context"
	stderrors "errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
)

func testSourceConfig() config.SourceConfig {
	return config.SourceConfig{
		Name:               "test-source",
		AdapterType:        "fake",
		BaseURL:            "https://example.com",
		RateLimitPerMinute: 600,
		TimeoutSeconds:     5,
		Enabled:            true,
	}
}

func newTestBase(t *testing.T) *BaseAdapter {
	t.Helper()
	b := NewBaseAdapter(testSourceConfig(), config.ReliabilityConfig{})
	require.NoError(t, b.Initialize(context.Background()))
	return b
}

func TestBaseAdapter_Lifecycle(t *testing.T) {
	b := NewBaseAdapter(testSourceConfig(), config.ReliabilityConfig{})
	assert.Equal(t, LifecycleUninitialized, b.LifecycleState())

	require.NoError(t, b.Initialize(context.Background()))
	assert.Equal(t, LifecycleInitialized, b.LifecycleState())
	assert.False(t, b.Connected())

	// Idempotent while initialized.
	require.NoError(t, b.Initialize(context.Background()))

	require.NoError(t, b.MarkConnected(true))
	assert.True(t, b.Connected())

	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, LifecycleClosed, b.LifecycleState())
	assert.False(t, b.Connected())

	// Close is idempotent; re-initialize after close fails.
	require.NoError(t, b.Close(context.Background()))
	err := b.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestBaseAdapter_ExecuteRequiresConnection(t *testing.T) {
	b := newTestBase(t)

	err := b.Execute(context.Background(), "fetch_latest", func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConnection))
}

func TestBaseAdapter_ExecuteUninitialized(t *testing.T) {
	b := NewBaseAdapter(testSourceConfig(), config.ReliabilityConfig{})

	err := b.Execute(context.Background(), "fetch_latest", func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestBaseAdapter_ExecuteUpdatesStats(t *testing.T) {
	b := newTestBase(t)
	require.NoError(t, b.MarkConnected(true))

	err := b.Execute(context.Background(), "fetch_latest", func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	err = b.Execute(context.Background(), "fetch_latest", func(ctx context.Context) error {
		return stderrors.New("upstream blew up")
	})
	require.Error(t, err)

	conn := b.ConnectionSnapshot()
	assert.Equal(t, int64(2), conn.RequestCount)
	assert.Equal(t, int64(1), conn.ErrorCount)
	assert.Greater(t, conn.AverageResponseTime, time.Duration(0))
	assert.False(t, conn.LastRequestAt.IsZero())
}

func TestBaseAdapter_ExecuteClassifiesErrors(t *testing.T) {
	b := newTestBase(t)
	require.NoError(t, b.MarkConnected(true))

	err := b.Execute(context.Background(), "search", func(ctx context.Context) error {
		return syscall.ECONNREFUSED
	})
	require.Error(t, err)

	var info *errors.Error
	require.True(t, stderrors.As(err, &info))
	assert.Equal(t, errors.KindConnection, info.Kind)
	assert.Equal(t, "test-source", info.Source)
	assert.Equal(t, "search", info.Operation)
	assert.True(t, info.ShouldRetry)
}

func TestBaseAdapter_CanceledAcquireIsTimeout(t *testing.T) {
	cfg := testSourceConfig()
	cfg.RateLimitPerMinute = 1
	b := NewBaseAdapter(cfg, config.ReliabilityConfig{})
	require.NoError(t, b.Initialize(context.Background()))
	require.NoError(t, b.MarkConnected(true))

	// Drain the single token.
	require.NoError(t, b.Execute(context.Background(), "fetch_latest", func(ctx context.Context) error {
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := b.Execute(ctx, "fetch_latest", func(ctx context.Context) error {
		t.Fatal("operation must not run without a token")
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTimeout))

	conn := b.ConnectionSnapshot()
	assert.Equal(t, int64(2), conn.RequestCount)
	assert.Equal(t, int64(1), conn.ErrorCount)
}

func TestBaseAdapter_CircuitBreakerOpens(t *testing.T) {
	b := NewBaseAdapter(testSourceConfig(), config.ReliabilityConfig{CircuitBreaker: true})
	require.NoError(t, b.Initialize(context.Background()))
	require.NoError(t, b.MarkConnected(true))

	boom := func(ctx context.Context) error { return stderrors.New("connection reset by peer") }
	for i := 0; i < 5; i++ {
		require.Error(t, b.Execute(context.Background(), "fetch_latest", boom))
	}

	// Breaker is now open: the call is rejected before fn runs.
	err := b.Execute(context.Background(), "fetch_latest", func(ctx context.Context) error {
		t.Fatal("operation must not run with the breaker open")
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConnection))
}

func TestBaseAdapter_ProbeDoesNotConsumeToken(t *testing.T) {
	cfg := testSourceConfig()
	cfg.RateLimitPerMinute = 1
	b := NewBaseAdapter(cfg, config.ReliabilityConfig{})
	require.NoError(t, b.Initialize(context.Background()))

	for i := 0; i < 3; i++ {
		result, err := b.Probe(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
		assert.True(t, result.Healthy)
		assert.False(t, result.CheckedAt.IsZero())
	}

	assert.Equal(t, 1, b.Stats().RateLimiter.Capacity)
	assert.Equal(t, int64(0), b.Stats().RateLimiter.AllowedRequests)
}

func TestBaseAdapter_ProbeFailure(t *testing.T) {
	b := newTestBase(t)

	result, err := b.Probe(context.Background(), func(ctx context.Context) error {
		return syscall.ECONNREFUSED
	})
	require.Error(t, err)
	assert.False(t, result.Healthy)
	assert.True(t, errors.IsKind(err, errors.KindConnection))
}

func TestBaseAdapter_ProbeOnClosedAdapter(t *testing.T) {
	b := newTestBase(t)
	require.NoError(t, b.Close(context.Background()))

	_, err := b.Probe(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestBaseAdapter_Stats(t *testing.T) {
	b := newTestBase(t)

	stats := b.Stats()
	assert.Equal(t, "test-source", stats.SourceName)
	assert.Equal(t, "fake", stats.AdapterType)
	assert.Equal(t, "initialized", stats.Lifecycle)
	assert.Equal(t, 600, stats.RateLimiter.Capacity)
}
