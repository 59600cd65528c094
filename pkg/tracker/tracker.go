// Package tracker aggregates per-source connection statistics so callers
// can inspect ingestion activity without reaching into individual adapters.
package tracker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/logger"
)

// ConnectionTracker holds the last observed ConnectionInfo per source.
// Closed sources stay in the map marked inactive so operators can still see
// their lifetime counters.
type ConnectionTracker struct {
	mu      sync.RWMutex
	sources map[string]adapter.ConnectionInfo
	logger  *zap.Logger
}

// NewConnectionTracker creates an empty tracker
func NewConnectionTracker() *ConnectionTracker {
	return &ConnectionTracker{
		sources: make(map[string]adapter.ConnectionInfo),
		logger:  logger.Get().With(zap.String("component", "connection_tracker")),
	}
}

// Track registers a source, seeding its entry if unseen
func (t *ConnectionTracker) Track(sourceName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sources[sourceName]; !ok {
		t.sources[sourceName] = adapter.ConnectionInfo{SourceName: sourceName}
		t.logger.Debug("tracking source", zap.String("source", sourceName))
	}
}

// Update stores the latest connection snapshot for a source
func (t *ConnectionTracker) Update(info adapter.ConnectionInfo) {
	if info.SourceName == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[info.SourceName] = info
}

// MarkClosed flags a source inactive while preserving its counters
func (t *ConnectionTracker) MarkClosed(sourceName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.sources[sourceName]
	if !ok {
		return
	}
	info.IsActive = false
	t.sources[sourceName] = info

	t.logger.Info("source closed",
		zap.String("source", sourceName),
		zap.Int64("requests", info.RequestCount),
		zap.Int64("errors", info.ErrorCount))
}

// Get returns the snapshot for one source
func (t *ConnectionTracker) Get(sourceName string) (adapter.ConnectionInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.sources[sourceName]
	return info, ok
}

// Snapshot returns all tracked sources ordered by name
func (t *ConnectionTracker) Snapshot() []adapter.ConnectionInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	infos := make([]adapter.ConnectionInfo, 0, len(t.sources))
	for _, info := range t.sources {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SourceName < infos[j].SourceName })
	return infos
}

// Status summarizes tracker-wide activity
type Status struct {
	TotalSources  int       `json:"total_sources"`
	ActiveSources int       `json:"active_sources"`
	TotalRequests int64     `json:"total_requests"`
	TotalErrors   int64     `json:"total_errors"`
	LastActivity  time.Time `json:"last_activity"`
}

// GetStatus aggregates the per-source counters into one summary
func (t *ConnectionTracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var status Status
	status.TotalSources = len(t.sources)
	for _, info := range t.sources {
		if info.IsActive {
			status.ActiveSources++
		}
		status.TotalRequests += info.RequestCount
		status.TotalErrors += info.ErrorCount
		if info.LastRequestAt.After(status.LastActivity) {
			status.LastActivity = info.LastRequestAt
		}
	}
	return status
}
