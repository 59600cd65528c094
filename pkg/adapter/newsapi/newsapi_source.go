// Package newsapi implements the SourceAdapter for NewsAPI-compatible REST
// endpoints. The adapter authenticates with a static API key header or an
// OAuth2 client-credentials grant, depending on the source configuration.
package newsapi

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/clients"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
)

// AdapterType is the registry key for NewsAPI-compatible sources
const AdapterType = "newsapi"

// maxBodyBytes caps response payloads
const maxBodyBytes = 8 << 20

// defaultQuery keeps FetchLatest scoped to the trading domain when the
// endpoint requires a query term.
const defaultQuery = "cryptocurrency OR bitcoin OR ethereum"

// Register adds the NewsAPI constructor to a registry
func Register(r *adapter.Registry) {
	r.Register(AdapterType, New)
}

// Source is an adapter over a NewsAPI-compatible endpoint
type Source struct {
	*adapter.BaseAdapter

	httpClient *http.Client
}

// New constructs an Uninitialized NewsAPI adapter
func New(cfg config.SourceConfig, rel config.ReliabilityConfig) (adapter.SourceAdapter, error) {
	if cfg.AuthType != "oauth2" && cfg.APIKey == "" {
		return nil, fmt.Errorf("source %s: api_key is required", cfg.Name)
	}
	return &Source{BaseAdapter: adapter.NewBaseAdapter(cfg, rel)}, nil
}

// Initialize allocates the shared adapter state and the HTTP client,
// wiring the OAuth2 transport when configured.
func (s *Source) Initialize(ctx context.Context) error {
	if err := s.BaseAdapter.Initialize(ctx); err != nil {
		return err
	}

	if s.httpClient != nil {
		return nil
	}

	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.RequestTimeout = s.Config().Timeout()
	base := clients.NewHTTPClient(httpCfg)

	cfg := s.Config()
	if cfg.AuthType == "oauth2" {
		s.httpClient = clients.NewOAuth2Client(ctx, clients.OAuth2Settings{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}, base)
		s.Logger().Info("oauth2 transport configured", zap.String("token_url", cfg.OAuth2.TokenURL))
	} else {
		s.httpClient = base
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

// FetchLatest returns up to limit recent articles from the everything
// endpoint sorted by publication time.
func (s *Source) FetchLatest(ctx context.Context, limit int) ([]adapter.Article, error) {
	return s.query(ctx, "fetch_latest", defaultQuery, limit)
}

// Search returns up to limit articles matching the keywords
func (s *Source) Search(ctx context.Context, keywords []string, limit int) ([]adapter.Article, error) {
	q := strings.Join(keywords, " OR ")
	if q == "" {
		q = defaultQuery
	}
	return s.query(ctx, "search", q, limit)
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

// query runs one rate-limited retrieval against /everything
func (s *Source) query(ctx context.Context, operation, q string, limit int) ([]adapter.Article, error) {
	var articles []adapter.Article

	err := s.Execute(ctx, operation, func(ctx context.Context) error {
		params := url.Values{}
		params.Set("q", q)
		params.Set("sortBy", "publishedAt")
		if limit > 0 {
			params.Set("pageSize", strconv.Itoa(limit))
		}

		payload, err := s.get(ctx, "/everything?"+params.Encode())
		if err != nil {
			return err
		}

		var resp articlesResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}
		if resp.Status != "ok" {
			return fmt.Errorf("source error %s: %s", resp.Code, resp.Message)
		}

		articles = s.toArticles(resp.Articles, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return articles, nil
}

// probeEndpoint checks reachability; any response below 500 means the
// endpoint itself is alive.
func (s *Source) probeEndpoint(ctx context.Context) error {
	_, err := s.get(ctx, "/everything?q=ping&pageSize=1")
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

// get issues an authenticated GET against the endpoint path
func (s *Source) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(s.Config().BaseURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if s.Config().AuthType != "oauth2" {
		req.Header.Set("X-Api-Key", s.Config().APIKey)
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

// articlesResponse is the NewsAPI wire format
type articlesResponse struct {
	Status   string        `json:"status"`
	Code     string        `json:"code,omitempty"`
	Message  string        `json:"message,omitempty"`
	Articles []wireArticle `json:"articles"`
}

type wireArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// toArticles converts wire articles to the core model
func (s *Source) toArticles(wire []wireArticle, limit int) []adapter.Article {
	if limit > 0 && len(wire) > limit {
		wire = wire[:limit]
	}

	now := time.Now()
	articles := make([]adapter.Article, 0, len(wire))
	for _, w := range wire {
		published, _ := time.Parse(time.RFC3339, w.PublishedAt)
		articles = append(articles, adapter.Article{
			ID:          w.URL,
			Source:      s.Name(),
			Title:       w.Title,
			Summary:     w.Description,
			URL:         w.URL,
			Author:      w.Author,
			PublishedAt: published,
			FetchedAt:   now,
		})
	}
	return articles
}
