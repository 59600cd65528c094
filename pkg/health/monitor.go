// Package health runs periodic probes against registered sources, tracks a
// per-source state machine, and raises alerts on degradation. The monitor
// owns its own goroutine and never blocks caller-initiated retrievals.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/logger"
)

// Status is the per-source health state
type Status int32

const (
	// StatusHealthy means recent checks pass within the latency threshold
	StatusHealthy Status = iota
	// StatusDegraded means the latest check was slow or a recent check failed
	StatusDegraded
	// StatusUnhealthy means consecutive failures reached the threshold
	StatusUnhealthy
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Target is the probe surface the monitor needs from a source
type Target interface {
	Name() string
	HealthCheck(ctx context.Context) (adapter.ProbeResult, error)
}

// Record is the tracked health state of one source. Records are created at
// the first check and retained for the process lifetime.
type Record struct {
	SourceName          string        `json:"source_name"`
	Status              Status        `json:"-"`
	StatusName          string        `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	UptimePercentage    float64       `json:"uptime_percentage"`
	LastResponseTime    time.Duration `json:"last_response_time"`
	LastCheckedAt       time.Time     `json:"last_checked_at"`
	LastError           string        `json:"last_error,omitempty"`
}

// record is the internal mutable state behind a Record
type record struct {
	Record
	window []bool
}

// Monitor probes every registered target on a fixed interval
type Monitor struct {
	cfg    config.HealthConfig
	logger *zap.Logger

	mu      sync.RWMutex
	targets map[string]Target
	records map[string]*record
	alerts  []Alert
	nextID  int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor with the given thresholds
func NewMonitor(cfg config.HealthConfig) *Monitor {
	return &Monitor{
		cfg:     cfg,
		logger:  logger.Get().With(zap.String("component", "health_monitor")),
		targets: make(map[string]Target),
		records: make(map[string]*record),
		stopCh:  make(chan struct{}),
	}
}

// Register adds a source to the probe rotation
func (m *Monitor) Register(target Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[target.Name()] = target
}

// Unregister removes a source from the rotation, keeping its record
func (m *Monitor) Unregister(sourceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, sourceName)
}

// Start launches the periodic check loop. The loop stops when ctx is
// canceled or Stop is called; an initial sweep runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()

		m.CheckNow(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// Stop halts the check loop and waits for the in-flight sweep. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// CheckNow sweeps every registered target once
func (m *Monitor) CheckNow(ctx context.Context) {
	m.mu.RLock()
	targets := make([]Target, 0, len(m.targets))
	for _, t := range m.targets {
		targets = append(targets, t)
	}
	m.mu.RUnlock()

	for _, t := range targets {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		default:
		}

		result, err := t.HealthCheck(ctx)
		m.observe(t.Name(), result, err)
	}
}

// observe applies one probe outcome to the source state machine
func (m *Monitor) observe(sourceName string, result adapter.ProbeResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sourceName]
	if !ok {
		rec = &record{Record: Record{SourceName: sourceName, Status: StatusHealthy}}
		m.records[sourceName] = rec
	}

	rec.LastCheckedAt = result.CheckedAt
	if rec.LastCheckedAt.IsZero() {
		rec.LastCheckedAt = time.Now()
	}
	rec.LastResponseTime = result.ResponseTime
	rec.pushOutcome(err == nil, m.cfg.UptimeWindow)
	rec.UptimePercentage = rec.uptime()

	prev := rec.Status

	switch {
	case err != nil:
		rec.ConsecutiveFailures++
		rec.LastError = err.Error()

		if rec.ConsecutiveFailures >= m.cfg.FailureThreshold {
			rec.Status = StatusUnhealthy
			if prev != StatusUnhealthy {
				// The escalation supersedes the source's earlier stage
				// alerts so one condition is active per failing source.
				m.dropActiveLocked(sourceName)
				m.raiseLocked(sourceName, ConditionConsecutiveFailures, SeverityHigh,
					fmt.Sprintf("%d consecutive health checks failed", rec.ConsecutiveFailures))
			}
		} else {
			rec.Status = StatusDegraded
			condition, severity := failureCondition(err)
			if prev != StatusDegraded || !m.hasActiveLocked(sourceName, condition) {
				m.raiseLocked(sourceName, condition, severity, rec.LastError)
			}
		}

	case result.ResponseTime > m.cfg.ResponseTimeThreshold:
		rec.ConsecutiveFailures = 0
		rec.LastError = ""
		rec.Status = StatusDegraded
		if prev != StatusDegraded || !m.hasActiveLocked(sourceName, ConditionSlowResponse) {
			m.raiseLocked(sourceName, ConditionSlowResponse, SeverityMedium,
				fmt.Sprintf("probe took %s, threshold is %s", result.ResponseTime, m.cfg.ResponseTimeThreshold))
		}

	default:
		rec.ConsecutiveFailures = 0
		rec.LastError = ""
		if rec.UptimePercentage >= m.cfg.UptimeThreshold {
			rec.Status = StatusHealthy
			if prev != StatusHealthy {
				m.clearSourceLocked(sourceName)
			}
		} else {
			rec.Status = StatusDegraded
		}
	}

	rec.StatusName = rec.Status.String()

	if rec.Status != prev {
		m.logger.Info("health status changed",
			zap.String("source", sourceName),
			zap.String("from", prev.String()),
			zap.String("to", rec.Status.String()),
			zap.Float64("uptime_pct", rec.UptimePercentage),
			zap.Int("consecutive_failures", rec.ConsecutiveFailures))
	}
}

// failureCondition maps a classified probe error to an alert condition
func failureCondition(err error) (Condition, Severity) {
	if errors.IsKind(err, errors.KindRateLimit) {
		return ConditionRateLimited, SeverityMedium
	}
	return ConditionConnectionFailure, SeverityHigh
}

// GetRecord returns the health record for one source
func (m *Monitor) GetRecord(sourceName string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[sourceName]
	if !ok {
		return Record{}, false
	}
	return rec.Record, true
}

// GetStatus returns the health status of one source, defaulting to Healthy
// for sources that have not been checked yet.
func (m *Monitor) GetStatus(sourceName string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.records[sourceName]; ok {
		return rec.Status
	}
	return StatusHealthy
}

// Snapshot returns a copy of every health record
func (m *Monitor) Snapshot() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec.Record)
	}
	return records
}

// Summary aggregates per-source states and the host load
type Summary struct {
	Healthy      int        `json:"healthy"`
	Degraded     int        `json:"degraded"`
	Unhealthy    int        `json:"unhealthy"`
	ActiveAlerts int        `json:"active_alerts"`
	SystemLoad   SystemLoad `json:"system_load"`
	CheckedAt    time.Time  `json:"checked_at"`
}

// Summarize builds the monitor-wide health summary
func (m *Monitor) Summarize() Summary {
	m.mu.RLock()
	summary := Summary{CheckedAt: time.Now()}
	for _, rec := range m.records {
		switch rec.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
	}
	for _, a := range m.alerts {
		if !a.Acknowledged {
			summary.ActiveAlerts++
		}
	}
	m.mu.RUnlock()

	summary.SystemLoad = ReadSystemLoad()
	return summary
}

// pushOutcome appends one check outcome to the rolling window
func (r *record) pushOutcome(success bool, window int) {
	r.window = append(r.window, success)
	if window > 0 && len(r.window) > window {
		r.window = r.window[len(r.window)-window:]
	}
}

// uptime returns the success percentage over the rolling window
func (r *record) uptime() float64 {
	if len(r.window) == 0 {
		return 100.0
	}
	var ok int
	for _, success := range r.window {
		if success {
			ok++
		}
	}
	return float64(ok) / float64(len(r.window)) * 100.0
}
