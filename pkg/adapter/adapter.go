// Package adapter defines the uniform abstraction over external news
// sources. Every source is wrapped by a SourceAdapter that owns its token
// bucket and connection statistics; concrete implementations live in the
// subpackages and are constructed through the Registry.
package adapter

import (
	"context"
	"time"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/ratelimit"
)

// Article is a single news item returned by an adapter. Parsing beyond the
// source payload decode is owned by downstream agents.
type Article struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Lifecycle is the adapter lifecycle state
type Lifecycle int32

const (
	// LifecycleUninitialized is the state before Initialize
	LifecycleUninitialized Lifecycle = iota
	// LifecycleInitialized is the operating state
	LifecycleInitialized
	// LifecycleClosed is terminal; all operations fail afterwards
	LifecycleClosed
)

// String returns the lifecycle state name
func (l Lifecycle) String() string {
	switch l {
	case LifecycleUninitialized:
		return "uninitialized"
	case LifecycleInitialized:
		return "initialized"
	case LifecycleClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionInfo records per-source activity statistics. It is mutated only
// by the owning adapter; readers receive copies.
type ConnectionInfo struct {
	SourceName          string        `json:"source_name"`
	IsActive            bool          `json:"is_active"`
	RequestCount        int64         `json:"request_count"`
	ErrorCount          int64         `json:"error_count"`
	LastRequestAt       time.Time     `json:"last_request_at"`
	AverageResponseTime time.Duration `json:"average_response_time"`
}

// ProbeResult is the outcome of a lightweight health probe. Probes use a
// separate path from data retrieval and do not consume the data token
// bucket.
type ProbeResult struct {
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Stats is the read-only projection of an adapter's identity and counters
type Stats struct {
	SourceName  string          `json:"source_name"`
	AdapterType string          `json:"adapter_type"`
	Lifecycle   string          `json:"lifecycle"`
	Connected   bool            `json:"connected"`
	Connection  ConnectionInfo  `json:"connection"`
	RateLimiter ratelimit.Stats `json:"rate_limiter"`
}

// SourceAdapter is the capability set every news source implementation
// provides. Lifecycle: Uninitialized -> Initialized -> Closed, with a
// Connected/Disconnected flag valid while Initialized. FetchLatest and
// Search require Initialized and Connected, acquire a rate limiter token
// before any I/O, and never let a raw error escape unclassified.
type SourceAdapter interface {
	// Name returns the unique source name
	Name() string

	// Type returns the adapter type key
	Type() string

	// Initialize allocates adapter resources. Idempotent while not closed.
	Initialize(ctx context.Context) error

	// Connect establishes the transport and marks the adapter active
	Connect(ctx context.Context) error

	// Disconnect drops the transport, leaving the adapter initialized
	Disconnect(ctx context.Context) error

	// FetchLatest retrieves up to limit most recent articles
	FetchLatest(ctx context.Context, limit int) ([]Article, error)

	// Search retrieves up to limit articles matching the keywords
	Search(ctx context.Context, keywords []string, limit int) ([]Article, error)

	// HealthCheck probes the source without consuming a data token
	HealthCheck(ctx context.Context) (ProbeResult, error)

	// Close releases resources; subsequent operations fail
	Close(ctx context.Context) error

	// Stats returns a snapshot of adapter identity and counters
	Stats() Stats
}
