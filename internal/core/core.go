// Package core composes the ingestion components: it builds adapters from
// configuration through the registry, fans retrievals out across sources in
// priority order, and owns the health monitor lifecycle.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/health"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/logger"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/metrics"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/observability"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/tracker"
)

// SourceError pairs a failed source with its classified error
type SourceError struct {
	Source string        `json:"source"`
	Err    *errors.Error `json:"error"`
}

// Result carries the aggregated articles plus the per-source failures of
// one fan-out. Partial success is normal operation, not an error.
type Result struct {
	Articles []adapter.Article `json:"articles"`
	Errors   []SourceError     `json:"errors,omitempty"`
}

// IngestionCore orchestrates the configured sources behind one retrieval
// surface. Construct with New, release with Shutdown.
type IngestionCore struct {
	cfg      *config.CoreConfig
	adapters []adapter.SourceAdapter
	tracker  *tracker.ConnectionTracker
	monitor  *health.Monitor
	retry    *RetryPolicy
	logger   *zap.Logger

	monitorCancel context.CancelFunc
	shutdownOnce  sync.Once
}

// New builds adapters for every enabled source, connects them, and starts
// the health monitor. Sources whose initial connect fails stay registered;
// the monitor drives their recovery.
func New(ctx context.Context, cfg *config.CoreConfig, registry *adapter.Registry) (*IngestionCore, error) {
	c := &IngestionCore{
		cfg:     cfg,
		tracker: tracker.NewConnectionTracker(),
		monitor: health.NewMonitor(cfg.Health),
		retry:   NewRetryPolicy(cfg.Reliability),
		logger:  logger.Get().With(zap.String("component", "ingestion_core")),
	}

	for _, src := range cfg.EnabledSources() {
		a, err := registry.Create(src)
		if err != nil {
			return nil, fmt.Errorf("create adapter for source %s: %w", src.Name, err)
		}
		if err := a.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("initialize source %s: %w", src.Name, err)
		}

		if err := a.Connect(ctx); err != nil {
			c.logger.Warn("initial connect failed, source stays registered",
				zap.String("source", src.Name), zap.Error(err))
		}

		c.adapters = append(c.adapters, a)
		c.tracker.Track(a.Name())
		c.tracker.Update(a.Stats().Connection)
		c.monitor.Register(a)
	}

	if len(c.adapters) == 0 {
		return nil, errors.New(errors.KindConfig, "no enabled sources configured")
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	c.monitorCancel = cancel
	c.monitor.Start(monitorCtx)

	c.logger.Info("ingestion core started", zap.Int("sources", len(c.adapters)))
	return c, nil
}

// SetRetryPolicy swaps the backoff policy. Call before issuing retrievals.
func (c *IngestionCore) SetRetryPolicy(policy *RetryPolicy) {
	if policy != nil {
		c.retry = policy
	}
}

// Fetch retrieves recent articles across all usable sources. A non-empty
// query narrows each source to matching items.
func (c *IngestionCore) Fetch(ctx context.Context, query string, limit int) (Result, error) {
	if query != "" {
		return c.fanOut(ctx, "fetch_latest", limit, func(ctx context.Context, a adapter.SourceAdapter) ([]adapter.Article, error) {
			return a.Search(ctx, []string{query}, limit)
		})
	}
	return c.fanOut(ctx, "fetch_latest", limit, func(ctx context.Context, a adapter.SourceAdapter) ([]adapter.Article, error) {
		return a.FetchLatest(ctx, limit)
	})
}

// Search retrieves articles matching the keywords across all usable sources
func (c *IngestionCore) Search(ctx context.Context, keywords []string, limit int) (Result, error) {
	return c.fanOut(ctx, "search", limit, func(ctx context.Context, a adapter.SourceAdapter) ([]adapter.Article, error) {
		return a.Search(ctx, keywords, limit)
	})
}

// sourceOutcome is one adapter's contribution to a fan-out
type sourceOutcome struct {
	articles []adapter.Article
	err      *errors.Error
}

// fanOut runs the operation concurrently on every enabled, non-Unhealthy
// adapter and aggregates in priority order until limit is reached. It
// returns partial results when at least one source succeeds; when every
// source fails the highest-severity error wins.
func (c *IngestionCore) fanOut(ctx context.Context, operation string, limit int,
	fn func(ctx context.Context, a adapter.SourceAdapter) ([]adapter.Article, error)) (Result, error) {

	ctx, span := observability.StartSpan(ctx, "core."+operation)
	var fanErr error
	defer func() { observability.EndSpan(span, fanErr) }()

	runID := fmt.Sprintf("%s-%d", operation, time.Now().UnixNano())
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)

	eligible := make([]adapter.SourceAdapter, 0, len(c.adapters))
	for _, a := range c.adapters {
		if c.monitor.GetStatus(a.Name()) == health.StatusUnhealthy {
			c.logger.Debug("skipping unhealthy source", zap.String("source", a.Name()))
			continue
		}
		eligible = append(eligible, a)
	}

	outcomes := make([]sourceOutcome, len(eligible))
	var wg sync.WaitGroup
	for i, a := range eligible {
		wg.Add(1)
		go func(i int, a adapter.SourceAdapter) {
			defer wg.Done()
			outcomes[i] = c.callSource(ctx, operation, a, fn)
		}(i, a)
	}
	wg.Wait()

	var result Result
	for i, a := range eligible {
		out := outcomes[i]
		if out.err != nil {
			result.Errors = append(result.Errors, SourceError{Source: a.Name(), Err: out.err})
			continue
		}
		metrics.ArticlesFetched.WithLabelValues(a.Name()).Add(float64(len(out.articles)))
		for _, article := range out.articles {
			if limit > 0 && len(result.Articles) >= limit {
				break
			}
			result.Articles = append(result.Articles, article)
		}
	}

	if len(eligible) > 0 && len(result.Errors) == len(eligible) {
		fanErr = highestSeverity(result.Errors)
		return result, fanErr
	}

	c.logger.Info("fan-out completed",
		zap.String("operation", operation),
		zap.Int("sources", len(eligible)),
		zap.Int("articles", len(result.Articles)),
		zap.Int("failed_sources", len(result.Errors)))
	return result, nil
}

// callSource runs one adapter operation under the retry policy, recording
// metrics and refreshing the connection tracker.
func (c *IngestionCore) callSource(ctx context.Context, operation string, a adapter.SourceAdapter,
	fn func(ctx context.Context, a adapter.SourceAdapter) ([]adapter.Article, error)) sourceOutcome {

	ctx = context.WithValue(ctx, logger.SourceKey, a.Name())
	ctx = context.WithValue(ctx, logger.OperationKey, operation)
	log := logger.WithContext(ctx)

	ctx, span := observability.StartSpan(ctx, "source."+operation,
		observability.SourceAttrs(a.Name(), operation)...)

	var articles []adapter.Article
	var attempt int
	timer := metrics.NewTimer()

	err := c.retry.ExecuteWithCondition(ctx, func() error {
		if attempt > 0 {
			metrics.RetryAttempts.WithLabelValues(a.Name(), operation).Inc()
		}
		attempt++

		var opErr error
		articles, opErr = fn(ctx, a)
		return opErr
	}, errors.IsRetryable)

	elapsed := timer.Stop()
	metrics.ObserveFetch(a.Name(), operation, elapsed, err)

	stats := a.Stats()
	c.tracker.Update(stats.Connection)
	metrics.RemainingTokens.WithLabelValues(a.Name()).Set(stats.RateLimiter.CurrentTokens)

	observability.EndSpan(span, err)

	if err != nil {
		log.Warn("source call failed",
			zap.Int("attempts", attempt),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return sourceOutcome{err: errors.Classify(err, a.Name(), operation)}
	}

	log.Debug("source call completed",
		zap.Int("articles", len(articles)),
		zap.Duration("elapsed", elapsed))
	return sourceOutcome{articles: articles}
}

// highestSeverity picks the most severe error of an all-failed fan-out
func highestSeverity(sourceErrs []SourceError) *errors.Error {
	var worst *errors.Error
	for _, se := range sourceErrs {
		if worst == nil || se.Err.Severity > worst.Severity {
			worst = se.Err
		}
	}
	return worst
}

// ConnectionStatus returns the latest connection snapshot per source
func (c *IngestionCore) ConnectionStatus() map[string]adapter.ConnectionInfo {
	for _, a := range c.adapters {
		c.tracker.Update(a.Stats().Connection)
	}

	status := make(map[string]adapter.ConnectionInfo, len(c.adapters))
	for _, info := range c.tracker.Snapshot() {
		status[info.SourceName] = info
	}
	return status
}

// TrackerStatus returns the aggregated connection counters
func (c *IngestionCore) TrackerStatus() tracker.Status {
	for _, a := range c.adapters {
		c.tracker.Update(a.Stats().Connection)
	}
	return c.tracker.GetStatus()
}

// HealthSummary returns the health record per checked source and refreshes
// the health gauges.
func (c *IngestionCore) HealthSummary() map[string]health.Record {
	records := c.monitor.Snapshot()
	summary := make(map[string]health.Record, len(records))
	for _, rec := range records {
		summary[rec.SourceName] = rec
		metrics.HealthStatus.WithLabelValues(rec.SourceName).Set(float64(rec.Status))
	}
	return summary
}

// SystemSummary returns monitor-wide health including host load
func (c *IngestionCore) SystemSummary() health.Summary {
	summary := c.monitor.Summarize()
	metrics.ActiveAlerts.Set(float64(summary.ActiveAlerts))
	return summary
}

// ActiveAlerts returns the unacknowledged health alerts
func (c *IngestionCore) ActiveAlerts() []health.Alert {
	return c.monitor.ActiveAlerts()
}

// AcknowledgeAlert marks an alert handled
func (c *IngestionCore) AcknowledgeAlert(id int64) bool {
	return c.monitor.Acknowledge(id)
}

// CheckHealthNow runs one monitor sweep outside the periodic schedule
func (c *IngestionCore) CheckHealthNow(ctx context.Context) {
	c.monitor.CheckNow(ctx)
}

// Shutdown stops the health monitor and closes every adapter. Idempotent;
// close failures are logged, not returned, so one bad source cannot block
// release of the rest.
func (c *IngestionCore) Shutdown(ctx context.Context) {
	c.shutdownOnce.Do(func() {
		c.monitorCancel()
		c.monitor.Stop()

		for _, a := range c.adapters {
			c.tracker.Update(a.Stats().Connection)
			if err := a.Close(ctx); err != nil {
				c.logger.Warn("adapter close failed",
					zap.String("source", a.Name()), zap.Error(err))
			}
			c.tracker.MarkClosed(a.Name())
		}

		c.logger.Info("ingestion core stopped")
	})
}
