// Package rss implements the SourceAdapter for RSS and Atom feeds. Feeds
// carry no search API, so Search fetches the feed and filters locally.
package rss

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/clients"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
)

// AdapterType is the registry key for RSS/Atom feed sources
const AdapterType = "rss"

// maxFeedBytes caps feed payloads to keep a misbehaving source from
// exhausting memory.
const maxFeedBytes = 8 << 20

// Register adds the RSS constructor to a registry
func Register(r *adapter.Registry) {
	r.Register(AdapterType, New)
}

// Source is an adapter over one RSS or Atom feed
type Source struct {
	*adapter.BaseAdapter

	httpClient *http.Client
}

// New constructs an Uninitialized RSS adapter
func New(cfg config.SourceConfig, rel config.ReliabilityConfig) (adapter.SourceAdapter, error) {
	return &Source{BaseAdapter: adapter.NewBaseAdapter(cfg, rel)}, nil
}

// Initialize allocates the shared adapter state and the HTTP client
func (s *Source) Initialize(ctx context.Context) error {
	if err := s.BaseAdapter.Initialize(ctx); err != nil {
		return err
	}

	if s.httpClient == nil {
		httpCfg := clients.DefaultHTTPConfig()
		httpCfg.RequestTimeout = s.Config().Timeout()
		s.httpClient = clients.NewHTTPClient(httpCfg)
	}
	return nil
}

// Connect verifies the feed is reachable and marks the adapter active
func (s *Source) Connect(ctx context.Context) error {
	if err := s.probeFeed(ctx); err != nil {
		info := errors.Classify(err, s.Name(), "connect")
		s.Logger().Warn("feed unreachable", zap.Error(info))
		return info
	}
	return s.MarkConnected(true)
}

// Disconnect marks the adapter inactive
func (s *Source) Disconnect(ctx context.Context) error {
	return s.MarkConnected(false)
}

// FetchLatest returns up to limit most recent feed items
func (s *Source) FetchLatest(ctx context.Context, limit int) ([]adapter.Article, error) {
	var articles []adapter.Article

	err := s.Execute(ctx, "fetch_latest", func(ctx context.Context) error {
		items, err := s.fetchFeed(ctx)
		if err != nil {
			return err
		}
		articles = clip(items, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return articles, nil
}

// Search fetches the feed and keeps items whose title or summary contains
// any of the keywords, case-insensitively.
func (s *Source) Search(ctx context.Context, keywords []string, limit int) ([]adapter.Article, error) {
	var articles []adapter.Article

	err := s.Execute(ctx, "search", func(ctx context.Context) error {
		items, err := s.fetchFeed(ctx)
		if err != nil {
			return err
		}

		matched := make([]adapter.Article, 0, len(items))
		for _, item := range items {
			if matchesAny(item, keywords) {
				matched = append(matched, item)
			}
		}
		articles = clip(matched, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return articles, nil
}

// HealthCheck probes the feed endpoint without consuming a data token
func (s *Source) HealthCheck(ctx context.Context) (adapter.ProbeResult, error) {
	return s.Probe(ctx, s.probeFeed)
}

// Close releases the HTTP transport
func (s *Source) Close(ctx context.Context) error {
	if err := s.BaseAdapter.Close(ctx); err != nil {
		return err
	}
	if s.httpClient != nil {
		s.httpClient.CloseIdleConnections()
	}
	return nil
}

// probeFeed issues a HEAD request, falling back to GET for feeds that
// reject HEAD.
func (s *Source) probeFeed(ctx context.Context) error {
	status, err := s.request(ctx, http.MethodHead, s.Config().BaseURL, io.Discard)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = s.request(ctx, http.MethodGet, s.Config().BaseURL, io.Discard)
	}
	if err != nil {
		return err
	}
	if status >= 400 {
		return &errors.StatusError{Code: status}
	}
	return nil
}

// fetchFeed retrieves and decodes the feed
func (s *Source) fetchFeed(ctx context.Context) ([]adapter.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Config().BaseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, err
	}

	return s.parseFeed(body)
}

// request issues one HTTP request and returns the status code, draining
// the body into sink.
func (s *Source) request(ctx context.Context, method, url string, sink io.Writer) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(sink, io.LimitReader(resp.Body, maxFeedBytes))
	return resp.StatusCode, nil
}

// rssFeed covers RSS 2.0 documents
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Author      string   `xml:"author"`
	Categories  []string `xml:"category"`
	GUID        string   `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
}

// atomFeed covers Atom documents
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	ID      string `xml:"id"`
	Updated string `xml:"updated"`
	Summary string `xml:"summary"`
	Author  struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

// parseFeed decodes RSS first, then Atom. Items are returned in document
// order, which feeds publish newest-first.
func (s *Source) parseFeed(body []byte) ([]adapter.Article, error) {
	now := time.Now()

	var rss rssFeed
	if err := xml.Unmarshal(body, &rss); err == nil && rss.XMLName.Local == "rss" {
		articles := make([]adapter.Article, 0, len(rss.Channel.Items))
		for _, item := range rss.Channel.Items {
			articles = append(articles, adapter.Article{
				ID:          itemID(item.GUID, item.Link),
				Source:      s.Name(),
				Title:       strings.TrimSpace(item.Title),
				Summary:     strings.TrimSpace(item.Description),
				URL:         item.Link,
				Author:      item.Author,
				Tags:        item.Categories,
				PublishedAt: parseFeedTime(item.PubDate),
				FetchedAt:   now,
			})
		}
		return articles, nil
	}

	var atom atomFeed
	if err := xml.Unmarshal(body, &atom); err == nil && atom.XMLName.Local == "feed" {
		articles := make([]adapter.Article, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			link := ""
			for _, l := range entry.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			articles = append(articles, adapter.Article{
				ID:          itemID(entry.ID, link),
				Source:      s.Name(),
				Title:       strings.TrimSpace(entry.Title),
				Summary:     strings.TrimSpace(entry.Summary),
				URL:         link,
				Author:      entry.Author.Name,
				PublishedAt: parseFeedTime(entry.Updated),
				FetchedAt:   now,
			})
		}
		return articles, nil
	}

	return nil, fmt.Errorf("malformed feed: payload is neither RSS nor Atom")
}

// feedTimeFormats are the timestamp layouts seen in the wild
var feedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05Z",
}

func parseFeedTime(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range feedTimeFormats {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func itemID(guid, link string) string {
	if guid != "" {
		return guid
	}
	return link
}

func matchesAny(item adapter.Article, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(item.Title + " " + item.Summary)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func clip(items []adapter.Article, limit int) []adapter.Article {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
