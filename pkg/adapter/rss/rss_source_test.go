package rss

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

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Crypto Wire</title>
    <item>
      <title>Bitcoin breaks resistance</title>
      <link>https://example.com/btc-resistance</link>
      <description>BTC pushed through a key level overnight.</description>
      <guid>wire-1001</guid>
      <category>bitcoin</category>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
    </item>
    <item>
      <title>Ethereum upgrade ships</title>
      <link>https://example.com/eth-upgrade</link>
      <description>Validators adopted the new fork without incident.</description>
      <guid>wire-1002</guid>
      <pubDate>Mon, 02 Jan 2006 14:00:00 -0700</pubDate>
    </item>
    <item>
      <title>Stablecoin report released</title>
      <link>https://example.com/stablecoin-report</link>
      <description>Regulators published quarterly findings.</description>
      <pubDate>Mon, 02 Jan 2006 13:00:00 -0700</pubDate>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Chain Updates</title>
  <entry>
    <title>Solana outage postmortem</title>
    <id>urn:entry:2001</id>
    <updated>2024-03-01T10:00:00Z</updated>
    <summary>Network halted for two hours during the incident.</summary>
    <author><name>ops team</name></author>
    <link rel="alternate" href="https://example.com/sol-postmortem"/>
  </entry>
</feed>`

func newFeedSource(t *testing.T, url string) *Source {
	t.Helper()

	cfg := config.SourceConfig{
		Name:               "feed-test",
		AdapterType:        AdapterType,
		BaseURL:            url,
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

func TestSource_FetchLatestRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	src := newFeedSource(t, srv.URL)
	defer src.Close(context.Background())

	articles, err := src.FetchLatest(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal(t, "wire-1001", first.ID)
	assert.Equal(t, "feed-test", first.Source)
	assert.Equal(t, "Bitcoin breaks resistance", first.Title)
	assert.Equal(t, "https://example.com/btc-resistance", first.URL)
	assert.Equal(t, []string{"bitcoin"}, first.Tags)
	assert.False(t, first.PublishedAt.IsZero())
	assert.False(t, first.FetchedAt.IsZero())

	// GUID-less items fall back to the link for identity.
	all, err := src.FetchLatest(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "https://example.com/stablecoin-report", all[2].ID)
}

func TestSource_FetchLatestAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleAtom))
	}))
	defer srv.Close()

	src := newFeedSource(t, srv.URL)
	defer src.Close(context.Background())

	articles, err := src.FetchLatest(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, articles, 1)

	entry := articles[0]
	assert.Equal(t, "urn:entry:2001", entry.ID)
	assert.Equal(t, "Solana outage postmortem", entry.Title)
	assert.Equal(t, "https://example.com/sol-postmortem", entry.URL)
	assert.Equal(t, "ops team", entry.Author)
}

func TestSource_SearchFiltersLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	src := newFeedSource(t, srv.URL)
	defer src.Close(context.Background())

	articles, err := src.Search(context.Background(), []string{"ethereum"}, 0)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Ethereum upgrade ships", articles[0].Title)

	// Empty keyword list matches everything.
	articles, err = src.Search(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, articles, 3)
}

func TestSource_MalformedFeedIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	src := newFeedSource(t, srv.URL)
	defer src.Close(context.Background())

	_, err := src.FetchLatest(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindParse))
	assert.False(t, errors.IsRetryable(err))
}

func TestSource_ServerErrorIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := config.SourceConfig{
		Name:               "feed-test",
		AdapterType:        AdapterType,
		BaseURL:            srv.URL,
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
	assert.True(t, errors.IsKind(err, errors.KindConnection))
	assert.False(t, src.Connected())
}

func TestSource_HealthCheckHeadFallback(t *testing.T) {
	var sawGet bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sawGet = true
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	src := newFeedSource(t, srv.URL)
	defer src.Close(context.Background())

	result, err := src.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.True(t, sawGet)
	assert.False(t, result.CheckedAt.IsZero())
}

func TestParseFeedTime(t *testing.T) {
	assert.False(t, parseFeedTime("Mon, 02 Jan 2006 15:04:05 -0700").IsZero())
	assert.False(t, parseFeedTime("2024-03-01T10:00:00Z").IsZero())
	assert.True(t, parseFeedTime("yesterday-ish").IsZero())
	assert.True(t, parseFeedTime("").IsZero())
}

func TestRegister(t *testing.T) {
	r := adapter.NewRegistry(config.ReliabilityConfig{})
	Register(r)
	assert.True(t, r.Has(AdapterType))
}
