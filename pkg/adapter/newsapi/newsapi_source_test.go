package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
)

const sampleResponse = `{
  "status": "ok",
  "articles": [
    {
      "source": {"name": "Crypto Daily"},
      "author": "a. writer",
      "title": "Bitcoin ETF inflows accelerate",
      "description": "Institutional demand picked up this week.",
      "url": "https://example.com/etf-inflows",
      "publishedAt": "2024-03-01T09:30:00Z"
    },
    {
      "source": {"name": "Crypto Daily"},
      "author": "b. writer",
      "title": "Ethereum gas fees drop",
      "description": "Average fees hit a six-month low.",
      "url": "https://example.com/gas-fees",
      "publishedAt": "2024-03-01T08:00:00Z"
    }
  ]
}`

func newAPISource(t *testing.T, url string) *Source {
	t.Helper()

	cfg := config.SourceConfig{
		Name:               "newsapi-test",
		AdapterType:        AdapterType,
		BaseURL:            url,
		APIKey:             "test-key",
		RateLimitPerMinute: 600,
		TimeoutSeconds:     5,
		Enabled:            true,
	}

	a, err := New(cfg, config.ReliabilityConfig{})
	require.NoError(t, err)

	src := a.(*Source)
	require.NoError(t, src.Initialize(context.Background()))
	require.NoError(t, src.Connect(context.Background()))
	return src
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(config.SourceConfig{Name: "keyless"}, config.ReliabilityConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")

	// OAuth2 sources carry no static key.
	_, err = New(config.SourceConfig{Name: "oauth", AuthType: "oauth2"}, config.ReliabilityConfig{})
	require.NoError(t, err)
}

func TestSource_FetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "publishedAt", r.URL.Query().Get("sortBy"))
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	src := newAPISource(t, srv.URL)
	defer src.Close(context.Background())

	articles, err := src.FetchLatest(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal(t, "https://example.com/etf-inflows", first.ID)
	assert.Equal(t, "newsapi-test", first.Source)
	assert.Equal(t, "Bitcoin ETF inflows accelerate", first.Title)
	assert.Equal(t, "a. writer", first.Author)
	assert.False(t, first.PublishedAt.IsZero())
}

func TestSource_SearchJoinsKeywords(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	src := newAPISource(t, srv.URL)
	defer src.Close(context.Background())

	_, err := src.Search(context.Background(), []string{"bitcoin", "etf"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "bitcoin OR etf", gotQuery)
}

func TestSource_LimitClipsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	src := newAPISource(t, srv.URL)
	defer src.Close(context.Background())

	articles, err := src.FetchLatest(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, articles, 1)
}

func TestSource_RateLimitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := newAPISource(t, srv.URL)
	defer src.Close(context.Background())

	_, err := src.FetchLatest(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRateLimit))
	assert.True(t, errors.IsRetryable(err))
}

func TestSource_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.SourceConfig{
		Name:               "newsapi-test",
		AdapterType:        AdapterType,
		BaseURL:            srv.URL,
		APIKey:             "bad-key",
		RateLimitPerMinute: 600,
		TimeoutSeconds:     5,
	}
	a, err := New(cfg, config.ReliabilityConfig{})
	require.NoError(t, err)
	src := a.(*Source)
	require.NoError(t, src.Initialize(context.Background()))
	defer src.Close(context.Background())

	err = src.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAuthentication))
	assert.False(t, errors.IsRetryable(err))
}

func TestSource_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","code":"parametersMissing","message":"q is required"}`))
	}))
	defer srv.Close()

	src := newAPISource(t, srv.URL)
	defer src.Close(context.Background())

	_, err := src.FetchLatest(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parametersMissing")
}

func TestSource_HealthCheckAcceptsClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	src := newAPISource(t, srv.URL)
	defer src.Close(context.Background())

	result, err := src.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Healthy)
}

func TestRegister(t *testing.T) {
	r := adapter.NewRegistry(config.ReliabilityConfig{})
	Register(r)
	assert.True(t, r.Has(AdapterType))
}
