package errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// StatusError carries an HTTP status code from an adapter transport so the
// classifier can map it deterministically.
type StatusError struct {
	Code   int
	Status string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Status != "" {
		return e.Status
	}
	return http.StatusText(e.Code)
}

// Classify maps a raw failure onto the taxonomy, attaching source and
// operation context. Already-classified errors pass through with context
// filled in. The mapping is deterministic:
//
//	connection refused/reset/unreachable -> connection / high / retry
//	deadline or timeout                  -> timeout / medium / retry
//	HTTP 429                             -> rate_limit / medium / retry
//	malformed payload                    -> parse / low / no retry
//	HTTP 401/403, bad credential         -> authentication / critical / no retry
//	anything else                        -> unknown / medium / retry
func Classify(err error, source, operation string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.Source == "" {
			existing.Source = source
		}
		if existing.Operation == "" {
			existing.Operation = operation
		}
		return existing
	}

	kind := classifyKind(err)
	return Wrap(err, kind, "classified "+string(kind)+" failure").WithContext(source, operation)
}

// classifyKind determines the taxonomy kind for a raw error
func classifyKind(err error) Kind {
	// Context and deadline failures first: a canceled acquire or I/O call
	// is recorded as a timeout, never as a consumed attempt.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return KindConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnection
	}

	return classifyMessage(err.Error())
}

// classifyStatus maps an HTTP status code onto the taxonomy
func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthentication
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindConnection
	default:
		return KindUnknown
	}
}

// classifyMessage falls back to message patterns for errors that carry no
// usable type information, matching the most specific category first.
func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "throttle"):
		return KindRateLimit
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "invalid credentials"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"):
		return KindAuthentication
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "service unavailable"):
		return KindConnection
	case strings.Contains(msg, "parse"),
		strings.Contains(msg, "unmarshal"),
		strings.Contains(msg, "malformed"),
		strings.Contains(msg, "unexpected end of"),
		strings.Contains(msg, "invalid character"),
		strings.Contains(msg, "invalid syntax"):
		return KindParse
	default:
		return KindUnknown
	}
}
