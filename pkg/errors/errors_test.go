package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_ConnectionRefused(t *testing.T) {
	raw := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

	info := Classify(raw, "newsapi", "fetch_latest")
	require.NotNil(t, info)
	assert.Equal(t, KindConnection, info.Kind)
	assert.Equal(t, SeverityHigh, info.Severity)
	assert.True(t, info.ShouldRetry)
	assert.Equal(t, "newsapi", info.Source)
	assert.Equal(t, "fetch_latest", info.Operation)
}

func TestClassify_Unauthorized(t *testing.T) {
	raw := &StatusError{Code: 401}

	info := Classify(raw, "newsapi", "search")
	require.NotNil(t, info)
	assert.Equal(t, KindAuthentication, info.Kind)
	assert.Equal(t, SeverityCritical, info.Severity)
	assert.False(t, info.ShouldRetry)
}

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		code int
		kind Kind
	}{
		{429, KindRateLimit},
		{401, KindAuthentication},
		{403, KindAuthentication},
		{408, KindTimeout},
		{504, KindTimeout},
		{500, KindConnection},
		{503, KindConnection},
		{418, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			info := Classify(&StatusError{Code: tt.code}, "src", "op")
			assert.Equal(t, tt.kind, info.Kind)
		})
	}
}

func TestClassify_DeadlineExceeded(t *testing.T) {
	info := Classify(context.DeadlineExceeded, "rss", "health_check")
	require.NotNil(t, info)
	assert.Equal(t, KindTimeout, info.Kind)
	assert.Equal(t, SeverityMedium, info.Severity)
	assert.True(t, info.ShouldRetry)
}

func TestClassify_ParseFailure(t *testing.T) {
	raw := stderrors.New("invalid character '<' looking for beginning of value")

	info := Classify(raw, "cryptopanic", "fetch_latest")
	require.NotNil(t, info)
	assert.Equal(t, KindParse, info.Kind)
	assert.Equal(t, SeverityLow, info.Severity)
	assert.False(t, info.ShouldRetry)
}

func TestClassify_UnknownDefaultsToRetryable(t *testing.T) {
	info := Classify(stderrors.New("something odd happened"), "rss", "fetch_latest")
	require.NotNil(t, info)
	assert.Equal(t, KindUnknown, info.Kind)
	assert.Equal(t, SeverityMedium, info.Severity)
	assert.True(t, info.ShouldRetry)
}

func TestClassify_PreservesExistingClassification(t *testing.T) {
	orig := New(KindAuthentication, "bad key")

	info := Classify(orig, "newsapi", "connect")
	assert.Same(t, orig, info)
	assert.Equal(t, "newsapi", info.Source)
	assert.Equal(t, "connect", info.Operation)
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil, "src", "op"))
}

func TestWrap_PreservesStack(t *testing.T) {
	inner := New(KindConnection, "refused")
	outer := Wrap(inner, KindConnection, "fetch failed")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindConnection, "no-op"))
}

func TestIsKindAndIsRetryable(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindRateLimit, "429 from source"))

	assert.True(t, IsKind(err, KindRateLimit))
	assert.False(t, IsKind(err, KindTimeout))
	assert.True(t, IsRetryable(err))

	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsKind(stderrors.New("plain"), KindUnknown))
}

func TestGetSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, GetSeverity(New(KindAuthentication, "denied")))
	assert.Equal(t, SeverityLow, GetSeverity(stderrors.New("plain")))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "low", SeverityLow.String())
	assert.Equal(t, "critical", SeverityCritical.String())
	assert.Equal(t, "unknown", Severity(99).String())
}
