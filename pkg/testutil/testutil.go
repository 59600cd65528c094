// Package testutil provides shared helpers for the ingestion test suites.
package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
)

// TestLogger creates a logger that writes to the test output.
// It is cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the timeout,
// polling every 10ms.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// StaticServer starts an HTTP server that answers every request with the
// given status and body. It is closed when the test completes.
func StaticServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// SampleArticles builds n articles attributed to source, newest first
func SampleArticles(source string, n int) []adapter.Article {
	now := time.Now()
	articles := make([]adapter.Article, 0, n)
	for i := 0; i < n; i++ {
		suffix := string(rune('a' + i%26))
		articles = append(articles, adapter.Article{
			ID:          source + "-" + suffix,
			Source:      source,
			Title:       "headline " + suffix,
			URL:         "https://example.com/" + source + "/" + suffix,
			PublishedAt: now.Add(-time.Duration(i) * time.Minute),
			FetchedAt:   now,
		})
	}
	return articles
}
