package llm

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"go-autoagent/internal/logging"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half-open"
)

// CircuitBreaker stops calling a provider after repeated failures and
// probes it again once the cooldown has elapsed.
type CircuitBreaker struct {
	mu                   sync.Mutex
	state                CircuitState
	failureCount         int
	consecutiveSuccesses int
	halfOpenInFlight     int
	lastFailureTime      time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	halfOpenMax      int

	totalRequests   int64
	totalFailures   int64
	totalRejections int64

	now func() time.Time
	log *slog.Logger
}

func NewCircuitBreaker(failureThreshold int, cooldown time.Duration, logger *slog.Logger) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 3
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: 2,
		cooldown:         cooldown,
		halfOpenMax:      1,
		now:              time.Now,
		log:              logging.Component(logger, "breaker"),
	}
}

// Call runs fn unless the circuit is open and records the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalRequests++

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.cooldown {
			cb.totalRejections++
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.consecutiveSuccesses = 0
		cb.halfOpenInFlight = 0
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenMax {
			cb.totalRejections++
			return ErrTooManyRequests
		}
		cb.halfOpenInFlight++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if err != nil {
		cb.totalFailures++
		cb.failureCount++
		cb.consecutiveSuccesses = 0
		cb.lastFailureTime = cb.now()
		switch cb.state {
		case StateClosed:
			if cb.failureCount >= cb.failureThreshold {
				cb.setState(StateOpen)
			}
		case StateHalfOpen:
			cb.setState(StateOpen)
		}
		return
	}

	cb.consecutiveSuccesses++
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		if cb.consecutiveSuccesses >= cb.successThreshold {
			cb.setState(StateClosed)
			cb.failureCount = 0
		}
	}
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	if cb.state != s {
		cb.log.Info("state transition", "from", cb.state, "to", s, "failures", cb.failureCount)
	}
	cb.state = s
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() map[string]any {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]any{
		"state":            string(cb.state),
		"total_requests":   cb.totalRequests,
		"total_failures":   cb.totalFailures,
		"total_rejections": cb.totalRejections,
		"failure_count":    cb.failureCount,
	}
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failureCount = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenInFlight = 0
}
