// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	stderrors "errors"
	"sync"
	"time"

	"github.com/jllopis/agora/pkg/errors"
)

// ErrCircuitOpen is the cause of every rejection by an open breaker.
var ErrCircuitOpen = stderrors.New("circuit breaker open")

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed means the circuit breaker is working normally.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen means the circuit breaker is blocking calls.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen means the circuit breaker is testing if service recovered.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// Value encodes the state for gauges: 0 closed, 1 half-open, 2 open.
func (s CircuitBreakerState) Value() int64 {
	switch s {
	case StateOpen:
		return 2
	case StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of successes in half-open before closing.
	SuccessThreshold int

	// Timeout is how long to wait before trying half-open state.
	Timeout time.Duration

	// Name is the circuit breaker identifier for logging/metrics.
	Name string

	// IsFailure decides which errors count against the breaker. Nil counts
	// every error.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to CircuitBreakerState)

	now func() time.Time
}

// CircuitBreaker prevents cascading failures using the circuit breaker pattern.
// The protected call runs without holding the breaker lock, so concurrent
// callers are not serialised. Half-open admits one probe at a time.
type CircuitBreaker struct {
	config       CircuitBreakerConfig
	mu           sync.Mutex
	state        CircuitBreakerState
	failures     int
	successes    int
	probing      bool
	lastFailTime time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	if config.now == nil {
		config.now = time.Now
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Call executes fn if the circuit breaker allows, tracking success/failure.
// Rejections wrap ErrCircuitOpen.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.config.now().Sub(cb.lastFailTime) >= cb.config.Timeout {
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.probing = false
	}
	rejected := cb.state == StateOpen || (cb.state == StateHalfOpen && cb.probing)
	if !rejected && cb.state == StateHalfOpen {
		cb.probing = true
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	if rejected {
		return errors.New(errors.CodeRateLimit, "circuit breaker open", ErrCircuitOpen).
			WithContext("breaker", cb.config.Name).
			WithRecoverable(false)
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	failed := err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err))

	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateHalfOpen:
		cb.probing = false
		if failed {
			cb.trip()
		} else if err == nil {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.state = StateClosed
				cb.failures = 0
			}
		}
	case StateClosed:
		if failed {
			cb.failures++
			cb.lastFailTime = cb.config.now()
			if cb.failures >= cb.config.FailureThreshold {
				cb.trip()
			}
		} else if err == nil {
			cb.failures = 0
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// trip opens the breaker. Must be called under lock.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.lastFailTime = cb.config.now()
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.probing = false
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	return stderrors.Is(err, ErrCircuitOpen)
}
