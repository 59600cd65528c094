// Package errors provides the structured error taxonomy for the news
// ingestion core. Every failure that crosses an adapter boundary is
// classified into a Kind with an associated Severity and retry guidance.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// Kind represents the category of error
type Kind string

const (
	// KindConnection represents refused, reset, or unreachable transports
	KindConnection Kind = "connection"
	// KindTimeout represents operations that exceeded their deadline
	KindTimeout Kind = "timeout"
	// KindRateLimit represents source-side rate limiting (HTTP 429)
	KindRateLimit Kind = "rate_limit"
	// KindParse represents malformed or unparseable payloads
	KindParse Kind = "parse"
	// KindAuthentication represents rejected or invalid credentials
	KindAuthentication Kind = "authentication"
	// KindConfig represents invalid configuration
	KindConfig Kind = "config"
	// KindUnknown represents anything unmatched
	KindUnknown Kind = "unknown"
)

// Severity indicates how serious a classified failure is
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity name
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a classified failure with source and operation context.
// It wraps the original error and carries the taxonomy fields consumed by
// the retry logic and the health monitor.
type Error struct {
	Kind        Kind
	Severity    Severity
	ShouldRetry bool
	Source      string
	Operation   string
	Timestamp   time.Time
	Message     string
	Cause       error
	Stack       []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches source and operation identity to the error
func (e *Error) WithContext(source, operation string) *Error {
	e.Source = source
	e.Operation = operation
	return e
}

// New creates a new classified error with the given kind and message
func New(kind Kind, message string) *Error {
	e := &Error{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		Stack:     captureStack(2),
	}
	e.Severity, e.ShouldRetry = defaults(kind)
	return e
}

// Wrap wraps an existing error with a kind and message. If the error is
// already classified its stack is preserved.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}

	e := &Error{
		Kind:      kind,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
	}
	e.Severity, e.ShouldRetry = defaults(kind)

	var existing *Error
	if errors.As(err, &existing) {
		e.Stack = existing.Stack
	} else {
		e.Stack = captureStack(2)
	}
	return e
}

// defaults returns the severity and retry guidance for a kind per the
// classification table.
func defaults(kind Kind) (Severity, bool) {
	switch kind {
	case KindConnection:
		return SeverityHigh, true
	case KindTimeout:
		return SeverityMedium, true
	case KindRateLimit:
		return SeverityMedium, true
	case KindParse:
		return SeverityLow, false
	case KindAuthentication:
		return SeverityCritical, false
	case KindConfig:
		return SeverityHigh, false
	default:
		return SeverityMedium, true
	}
}

// IsRetryable returns true if the error carries retry guidance
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.ShouldRetry
}

// IsKind checks if the error is of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// GetSeverity returns the severity of a classified error, or SeverityLow
// for unclassified errors.
func GetSeverity(err error) Severity {
	var e *Error
	if !errors.As(err, &e) {
		return SeverityLow
	}
	return e.Severity
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
