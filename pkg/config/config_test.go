package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
sources:
  - name: coindesk-rss
    adapter_type: rss
    base_url: https://www.coindesk.com/arc/outboundfeeds/rss/
    rate_limit_per_minute: 30
    timeout_seconds: 10
    enabled: true
    priority: 1
  - name: newsapi
    adapter_type: newsapi
    base_url: https://newsapi.org/v2
    api_key: ${NEWSCORE_TEST_API_KEY}
    rate_limit_per_minute: 60
    timeout_seconds: 15
    enabled: true
    priority: 2
  - name: disabled-source
    adapter_type: rss
    base_url: https://example.com/feed
    enabled: false
    priority: 0
reliability:
  retry_attempts: 5
health:
  failure_threshold: 4
`

func TestParse(t *testing.T) {
	t.Setenv("NEWSCORE_TEST_API_KEY", "secret-key")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "secret-key", cfg.Sources[1].APIKey)

	// Explicit values kept, defaults applied elsewhere.
	assert.Equal(t, 5, cfg.Reliability.RetryAttempts)
	assert.Equal(t, 1*time.Second, cfg.Reliability.RetryDelay)
	assert.Equal(t, 4, cfg.Health.FailureThreshold)
	assert.Equal(t, 95.0, cfg.Health.UptimeThreshold)
}

func TestEnabledSources_PriorityOrder(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	enabled := cfg.EnabledSources()
	require.Len(t, enabled, 2)
	assert.Equal(t, "coindesk-rss", enabled[0].Name)
	assert.Equal(t, "newsapi", enabled[1].Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Sources, 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", `
sources:
  - adapter_type: rss
    base_url: https://example.com
`},
		{"missing adapter type", `
sources:
  - name: x
    base_url: https://example.com
`},
		{"missing base url", `
sources:
  - name: x
    adapter_type: rss
`},
		{"duplicate names", `
sources:
  - name: x
    adapter_type: rss
    base_url: https://example.com/a
  - name: x
    adapter_type: rss
    base_url: https://example.com/b
`},
		{"negative rate limit", `
sources:
  - name: x
    adapter_type: rss
    base_url: https://example.com
    rate_limit_per_minute: -1
`},
		{"oauth2 missing token url", `
sources:
  - name: x
    adapter_type: newsapi
    base_url: https://example.com
    auth_type: oauth2
    oauth2:
      client_id: abc
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSourceConfig_Timeout(t *testing.T) {
	src := SourceConfig{TimeoutSeconds: 10}
	assert.Equal(t, 10*time.Second, src.Timeout())

	src.TimeoutSeconds = 0
	assert.Equal(t, 30*time.Second, src.Timeout())
}

// sourceByValue mirrors accessors that hand out the config by value, like
// the adapter's Config method.
func sourceByValue() SourceConfig {
	return SourceConfig{TimeoutSeconds: 10}
}

func TestSourceConfig_MethodsOnReturnedValue(t *testing.T) {
	assert.Equal(t, 10*time.Second, sourceByValue().Timeout())
	assert.Equal(t, time.Minute, sourceByValue().RateWindow())
}

func TestParse_EnvValueStaysLiteral(t *testing.T) {
	// Values pulled from the environment are not expanded again, so a
	// self-referential value cannot loop.
	t.Setenv("NEWSCORE_TEST_API_KEY", "${NEWSCORE_TEST_API_KEY}")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "${NEWSCORE_TEST_API_KEY}", cfg.Sources[1].APIKey)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	cfg := NewCoreConfig()
	cfg.Sources = []SourceConfig{{
		Name:        "example-rss",
		AdapterType: "rss",
		BaseURL:     "https://example.com/feed",
		Enabled:     true,
		Priority:    1,
	}}
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded.Sources, 1)
	assert.Equal(t, "example-rss", loaded.Sources[0].Name)
	assert.Equal(t, cfg.Reliability.RetryAttempts, loaded.Reliability.RetryAttempts)
}
