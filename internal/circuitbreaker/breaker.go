package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls
	StateHalfOpen              // Testing with one probe
)

// ErrCircuitOpen is returned by Do while the breaker is open and the reset
// timeout has not elapsed. The wrapped operation is never invoked.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreaker guards calls to a single named upstream. One instance
// exists per upstream for the lifetime of the process.
type CircuitBreaker struct {
	name             string
	mutex            sync.Mutex
	state            State
	failures         int
	successes        int64
	totalCalls       int64
	lastFailure      time.Time
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time
}

// Counts is a point-in-time snapshot of a breaker's bookkeeping.
type Counts struct {
	State      State  `json:"-"`
	StateName  string `json:"state"`
	Failures   int    `json:"failures"`
	Successes  int64  `json:"successes"`
	TotalCalls int64  `json:"total_calls"`
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreakerWithClock(name, threshold, timeout, time.Now)
}

// NewCircuitBreakerWithClock is NewCircuitBreaker with an injected clock,
// used by tests to step through the reset timeout.
func NewCircuitBreakerWithClock(name string, threshold int, timeout time.Duration, now func() time.Time) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     timeout,
		now:              now,
	}
}

// Do executes op through the breaker. While the breaker is open and the
// reset timeout has not elapsed, op is not invoked and ErrCircuitOpen is
// returned. Every invocation counts toward the total, rejected ones
// included.
func (cb *CircuitBreaker) Do(op func() error) error {
	if !cb.allow() {
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}

	if err := op(); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

// allow counts the call and reports whether it may proceed. An open
// breaker whose reset timeout has elapsed moves to HALF-OPEN and lets the
// probe through.
func (cb *CircuitBreaker) allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalCalls++

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			return true
		}

		return false
	case StateHalfOpen:
		return true
	default:
		return true
	}
}

// RecordFailure notes a failed call. A HALF-OPEN breaker re-opens on a
// single probe failure; a CLOSED breaker opens once failures reach the
// threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
	}

	if cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
	}
}

// RecordSuccess notes a successful call, resetting the failure count. A
// HALF-OPEN breaker closes again.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.successes++
	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.state = StateClosed
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Counts returns a snapshot for the metrics endpoint.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Counts{
		State:      cb.state,
		StateName:  cb.state.String(),
		Failures:   cb.failures,
		Successes:  cb.successes,
		TotalCalls: cb.totalCalls,
	}
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}
