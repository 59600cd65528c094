// Package cryptopanic implements the SourceAdapter for CryptoPanic-style
// crypto news aggregator endpoints.
package cryptopanic

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/clients"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
)

// AdapterType is the registry key for CryptoPanic-style sources
const AdapterType = "cryptopanic"

const maxBodyBytes = 8 << 20

// Register adds the CryptoPanic constructor to a registry
func Register(r *adapter.Registry) {
	r.Register(AdapterType, New)
}

// Source is an adapter over a CryptoPanic-style aggregator endpoint
type Source struct {
	*adapter.BaseAdapter

	httpClient *http.Client
}

// New constructs an Uninitialized CryptoPanic adapter
func New(cfg config.SourceConfig, rel config.ReliabilityConfig) (adapter.SourceAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("source %s: api_key is required", cfg.Name)
	}
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

// Connect verifies the endpoint responds and marks the adapter active
func (s *Source) Connect(ctx context.Context) error {
	if err := s.probeEndpoint(ctx); err != nil {
		info := errors.Classify(err, s.Name(), "connect")
		s.Logger().Warn("endpoint unreachable", zap.Error(info))
		return info
	}
	return s.MarkConnected(true)
}

// Disconnect marks the adapter inactive
func (s *Source) Disconnect(ctx context.Context) error {
	return s.MarkConnected(false)
}

// FetchLatest returns up to limit most recent posts
func (s *Source) FetchLatest(ctx context.Context, limit int) ([]adapter.Article, error) {
	return s.fetchPosts(ctx, "fetch_latest", nil, limit)
}

// Search returns up to limit posts filtered by currency keywords
func (s *Source) Search(ctx context.Context, keywords []string, limit int) ([]adapter.Article, error) {
	return s.fetchPosts(ctx, "search", keywords, limit)
}

// HealthCheck probes the endpoint without consuming a data token
func (s *Source) HealthCheck(ctx context.Context) (adapter.ProbeResult, error) {
	return s.Probe(ctx, s.probeEndpoint)
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

// fetchPosts runs one rate-limited retrieval against /posts
func (s *Source) fetchPosts(ctx context.Context, operation string, keywords []string, limit int) ([]adapter.Article, error) {
	var articles []adapter.Article

	err := s.Execute(ctx, operation, func(ctx context.Context) error {
		params := url.Values{}
		params.Set("auth_token", s.Config().APIKey)
		params.Set("public", "true")
		if len(keywords) > 0 {
			params.Set("currencies", strings.Join(keywords, ","))
		}

		payload, err := s.get(ctx, "/posts/?"+params.Encode())
		if err != nil {
			return err
		}

		var resp postsResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}

		articles = s.toArticles(resp.Results, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return articles, nil
}

// probeEndpoint checks reachability without the auth token so the probe
// never spends API quota; any response below 500 means the endpoint is up.
func (s *Source) probeEndpoint(ctx context.Context) error {
	_, err := s.get(ctx, "/posts/?public=true")
	if err != nil {
		var statusErr *errors.StatusError
		if stderrors.As(err, &statusErr) && statusErr.Code < 500 &&
			statusErr.Code != http.StatusUnauthorized && statusErr.Code != http.StatusForbidden {
			return nil
		}
		return err
	}
	return nil
}

// get issues one GET against the endpoint path
func (s *Source) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(s.Config().BaseURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return body, nil
}

// postsResponse is the aggregator wire format
type postsResponse struct {
	Results []wirePost `json:"results"`
}

type wirePost struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source struct {
		Title  string `json:"title"`
		Domain string `json:"domain"`
	} `json:"source"`
	Currencies []struct {
		Code string `json:"code"`
	} `json:"currencies"`
	PublishedAt string `json:"published_at"`
}

// toArticles converts wire posts to the core model
func (s *Source) toArticles(posts []wirePost, limit int) []adapter.Article {
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}

	now := time.Now()
	articles := make([]adapter.Article, 0, len(posts))
	for _, p := range posts {
		published, _ := time.Parse(time.RFC3339, p.PublishedAt)

		tags := make([]string, 0, len(p.Currencies))
		for _, c := range p.Currencies {
			tags = append(tags, c.Code)
		}

		articles = append(articles, adapter.Article{
			ID:          fmt.Sprintf("%s-%d", s.Name(), p.ID),
			Source:      s.Name(),
			Title:       p.Title,
			URL:         p.URL,
			Author:      p.Source.Title,
			Tags:        tags,
			PublishedAt: published,
			FetchedAt:   now,
		})
	}
	return articles
}
