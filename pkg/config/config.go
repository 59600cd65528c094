// Package config provides the configuration system for the news ingestion
// core. A CoreConfig carries the shared reliability, health, and
// observability settings; each external news source is described by one
// SourceConfig and is immutable after adapter construction.
//
// Example usage:
//
//	cfg, err := config.LoadFile("sources.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, src := range cfg.EnabledSources() {
//	    // register src with the adapter registry
//	}
package config

import (
	"fmt"
	"sort"
	"time"
)

// SourceConfig describes one external news source. Name is the unique key;
// AdapterType selects the registered adapter constructor.
type SourceConfig struct {
	// Name identifies the source instance
	Name string `yaml:"name" json:"name"`
	// AdapterType selects the adapter implementation (e.g. "rss", "newsapi")
	AdapterType string `yaml:"adapter_type" json:"adapter_type"`
	// BaseURL is the root endpoint of the source
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey is the optional credential (use ${ENV_VAR} in YAML)
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	// AuthType selects the credential scheme ("api_key", "oauth2", "")
	AuthType string `yaml:"auth_type,omitempty" json:"auth_type,omitempty"`
	// OAuth2 carries client-credential settings when AuthType is "oauth2"
	OAuth2 OAuth2Config `yaml:"oauth2,omitempty" json:"oauth2,omitempty"`
	// RateLimitPerMinute caps requests per minute; 0 admits no traffic
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	// TimeoutSeconds bounds each I/O operation
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	// Enabled sources are registered into the active pool
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Priority orders fan-out; lower value means higher precedence
	Priority int `yaml:"priority" json:"priority"`
}

// OAuth2Config holds client-credential grant settings for sources that
// authenticate with OAuth2 instead of a static API key.
type OAuth2Config struct {
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"client_secret"`
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	Scopes       []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// Timeout returns the per-operation timeout as a duration
func (s SourceConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RateWindow returns the refill window of the source's token bucket
func (s SourceConfig) RateWindow() time.Duration {
	return time.Minute
}

// Validate checks that the source description is usable
func (s *SourceConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if s.AdapterType == "" {
		return fmt.Errorf("source %s: adapter_type is required", s.Name)
	}
	if s.BaseURL == "" {
		return fmt.Errorf("source %s: base_url is required", s.Name)
	}
	if s.RateLimitPerMinute < 0 {
		return fmt.Errorf("source %s: rate_limit_per_minute cannot be negative", s.Name)
	}
	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("source %s: timeout_seconds cannot be negative", s.Name)
	}
	if s.AuthType == "oauth2" {
		if s.OAuth2.ClientID == "" || s.OAuth2.TokenURL == "" {
			return fmt.Errorf("source %s: oauth2 client_id and token_url are required", s.Name)
		}
	}
	return nil
}

// ReliabilityConfig contains retry and circuit breaker settings shared by
// all adapters.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for retryable failures
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// CircuitBreaker enables circuit breaker protection on transports
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
}

// HealthConfig contains health monitor thresholds
type HealthConfig struct {
	// CheckInterval is the period between health probes
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`
	// FailureThreshold marks a source unhealthy after this many
	// consecutive failed checks
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	// UptimeThreshold is the rolling uptime fraction required to return
	// to healthy (0-100)
	UptimeThreshold float64 `yaml:"uptime_threshold" json:"uptime_threshold"`
	// ResponseTimeThreshold marks a source degraded when a probe is slower
	ResponseTimeThreshold time.Duration `yaml:"response_time_threshold" json:"response_time_threshold"`
	// UptimeWindow is the number of recent checks in the rolling window
	UptimeWindow int `yaml:"uptime_window" json:"uptime_window"`
}

// ObservabilityConfig contains logging, metrics, and tracing settings
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// EnableMetrics activates Prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates OpenTelemetry tracing
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
}

// CoreConfig is the root configuration of the ingestion core
type CoreConfig struct {
	Sources       []SourceConfig      `yaml:"sources" json:"sources"`
	Reliability   ReliabilityConfig   `yaml:"reliability" json:"reliability"`
	Health        HealthConfig        `yaml:"health" json:"health"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// NewCoreConfig returns a configuration populated with defaults
func NewCoreConfig() *CoreConfig {
	return &CoreConfig{
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      1 * time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
			CircuitBreaker:  true,
		},
		Health: HealthConfig{
			CheckInterval:         30 * time.Second,
			FailureThreshold:      3,
			UptimeThreshold:       95.0,
			ResponseTimeThreshold: 5 * time.Second,
			UptimeWindow:          20,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			EnableMetrics: true,
		},
	}
}

// applyDefaults fills zero-valued fields after unmarshalling
func (c *CoreConfig) applyDefaults() {
	def := NewCoreConfig()

	if c.Reliability.RetryAttempts == 0 {
		c.Reliability.RetryAttempts = def.Reliability.RetryAttempts
	}
	if c.Reliability.RetryDelay == 0 {
		c.Reliability.RetryDelay = def.Reliability.RetryDelay
	}
	if c.Reliability.RetryMultiplier == 0 {
		c.Reliability.RetryMultiplier = def.Reliability.RetryMultiplier
	}
	if c.Reliability.MaxRetryDelay == 0 {
		c.Reliability.MaxRetryDelay = def.Reliability.MaxRetryDelay
	}
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = def.Health.CheckInterval
	}
	if c.Health.FailureThreshold == 0 {
		c.Health.FailureThreshold = def.Health.FailureThreshold
	}
	if c.Health.UptimeThreshold == 0 {
		c.Health.UptimeThreshold = def.Health.UptimeThreshold
	}
	if c.Health.ResponseTimeThreshold == 0 {
		c.Health.ResponseTimeThreshold = def.Health.ResponseTimeThreshold
	}
	if c.Health.UptimeWindow == 0 {
		c.Health.UptimeWindow = def.Health.UptimeWindow
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = def.Observability.LogLevel
	}
}

// Validate checks the whole configuration, including source uniqueness
func (c *CoreConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if err := src.Validate(); err != nil {
			return err
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}

	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	if c.Health.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1")
	}
	if c.Health.UptimeThreshold < 0 || c.Health.UptimeThreshold > 100 {
		return fmt.Errorf("uptime_threshold must be between 0 and 100")
	}
	return nil
}

// EnabledSources returns enabled sources ordered by priority, then name for
// a stable order among equals.
func (c *CoreConfig) EnabledSources() []SourceConfig {
	enabled := make([]SourceConfig, 0, len(c.Sources))
	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].Name < enabled[j].Name
	})
	return enabled
}
