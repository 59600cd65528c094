package clients

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int32

const (
	// StateClosed allows all requests to pass through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows a limited number of probe requests
	StateHalfOpen
)

// String returns the state name
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call
type ErrCircuitOpen struct{}

func (ErrCircuitOpen) Error() string { return "circuit breaker is open" }

// CircuitBreakerConfig configures failure and recovery thresholds
type CircuitBreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Consecutive successes before closing
	OpenTimeout      time.Duration // Time in open state before probing
	HalfOpenLimit    int           // Max in-flight probes while half-open
}

// DefaultCircuitBreakerConfig returns the thresholds used by adapters
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenTimeout:      30 * time.Second,
		HalfOpenLimit:    2,
	}
}

// CircuitBreaker protects a source transport from repeated failing calls.
// It opens after FailureThreshold consecutive failures, probes after
// OpenTimeout, and closes again after SuccessThreshold probe successes.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger *zap.Logger

	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenInFlight     int
	nextRetryTime        time.Time

	mu sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker in the closed state
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultCircuitBreakerConfig().SuccessThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = DefaultCircuitBreakerConfig().OpenTimeout
	}
	if config.HalfOpenLimit <= 0 {
		config.HalfOpenLimit = DefaultCircuitBreakerConfig().HalfOpenLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CircuitBreaker{
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker")),
		state:  StateClosed,
	}
}

// Execute runs fn with circuit breaker protection. When the circuit is
// open it returns ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen{}
	}

	err := fn()
	if err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

// allow decides whether a call may proceed
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().After(cb.nextRetryTime) {
			cb.transitionLocked(StateHalfOpen)
			cb.halfOpenInFlight = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenLimit {
			return false
		}
		cb.halfOpenInFlight++
		return true
	default:
		return false
	}
}

// recordSuccess registers a successful call
func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0

	if cb.state == StateHalfOpen {
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transitionLocked(StateClosed)
		}
	}
}

// recordFailure registers a failed call
func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// Any probe failure reopens the circuit.
		cb.transitionLocked(StateOpen)
	}
}

// transitionLocked moves to a new state. Callers must hold mu.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.consecutiveSuccesses = 0
	cb.halfOpenInFlight = 0

	if to == StateOpen {
		cb.nextRetryTime = time.Now().Add(cb.config.OpenTimeout)
	}
	if to == StateClosed {
		cb.consecutiveFailures = 0
	}

	cb.logger.Info("circuit breaker state change",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
}
