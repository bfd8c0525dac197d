package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

// CircuitSnapshot is a point-in-time view of the breaker for status reporting.
type CircuitSnapshot struct {
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
	NextRetryAt         *time.Time   `json:"next_retry_at,omitempty"`
	Forced              bool         `json:"forced"`
}

// CircuitBreaker is a small stateful breaker for dependency protection.
//
// Open lasts openTimeout after organic failures; ForceOpen may pin a longer
// cooldown for the current open period only.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openTimeout      time.Duration
	halfOpenMaxReq   int

	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	openFor             time.Duration
	lastFailureAt       time.Time
	forced              bool
	halfOpenInFlight    int
	halfOpenSuccesses   int
	now                 func() time.Time
}

func NewCircuitBreaker(failureThreshold int, openTimeout time.Duration, halfOpenMaxReq int) *CircuitBreaker {
	return NewCircuitBreakerWithClock(failureThreshold, openTimeout, halfOpenMaxReq, time.Now)
}

func NewCircuitBreakerWithClock(failureThreshold int, openTimeout time.Duration, halfOpenMaxReq int, now func() time.Time) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if openTimeout <= 0 {
		openTimeout = 15 * time.Second
	}
	if halfOpenMaxReq < 1 {
		halfOpenMaxReq = 1
	}
	if now == nil {
		now = time.Now
	}

	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
		halfOpenMaxReq:   halfOpenMaxReq,
		state:            CircuitStateClosed,
		now:              now,
	}
}

// Allow reports whether a call may proceed. In half-open it admits at most
// halfOpenMaxReq trial calls until they are recorded.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.state == CircuitStateOpen {
		if now.Sub(b.openedAt) < b.openFor {
			return ErrCircuitOpen
		}
		b.toHalfOpen()
	}

	if b.state == CircuitStateHalfOpen {
		if b.halfOpenInFlight >= b.halfOpenMaxReq {
			return ErrCircuitOpen
		}
		b.halfOpenInFlight++
	}

	return nil
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateClosed:
		b.consecutiveFailures = 0
	case CircuitStateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.halfOpenMaxReq && b.halfOpenInFlight == 0 {
			b.toClosed()
		}
	}
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = b.now()
	switch b.state {
	case CircuitStateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.toOpen(b.openTimeout)
		}
	case CircuitStateHalfOpen:
		b.consecutiveFailures++
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.toOpen(b.openTimeout)
	case CircuitStateOpen:
		b.consecutiveFailures++
		b.openedAt = b.now()
	}
}

// Release returns a half-open trial slot whose call ended without an
// outcome, such as a canceled request. The state is left unchanged.
func (b *CircuitBreaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

// ForceOpen opens the breaker for cooldown regardless of its current state.
// A zero cooldown uses the configured open timeout.
func (b *CircuitBreaker) ForceOpen(cooldown time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cooldown <= 0 {
		cooldown = b.openTimeout
	}
	b.toOpen(cooldown)
	b.forced = true
}

// Reset closes the breaker and clears failure history.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.toClosed()
	b.lastFailureAt = time.Time{}
}

func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.effectiveState()
}

func (b *CircuitBreaker) Forced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.forced && b.effectiveState() == CircuitStateOpen
}

func (b *CircuitBreaker) Snapshot() CircuitSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := CircuitSnapshot{
		State:               b.effectiveState(),
		ConsecutiveFailures: b.consecutiveFailures,
		Forced:              b.forced,
	}
	if !b.lastFailureAt.IsZero() {
		at := b.lastFailureAt
		out.LastFailureAt = &at
	}
	if b.state == CircuitStateOpen {
		opened := b.openedAt
		retry := b.openedAt.Add(b.openFor)
		out.OpenedAt = &opened
		out.NextRetryAt = &retry
	}
	return out
}

func (b *CircuitBreaker) effectiveState() CircuitState {
	if b.state == CircuitStateOpen && b.now().Sub(b.openedAt) >= b.openFor {
		return CircuitStateHalfOpen
	}
	return b.state
}

func (b *CircuitBreaker) toClosed() {
	b.state = CircuitStateClosed
	b.consecutiveFailures = 0
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
	b.openedAt = time.Time{}
	b.openFor = 0
	b.forced = false
}

func (b *CircuitBreaker) toOpen(cooldown time.Duration) {
	b.state = CircuitStateOpen
	b.openedAt = b.now()
	b.openFor = cooldown
	b.forced = false
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
}

func (b *CircuitBreaker) toHalfOpen() {
	b.state = CircuitStateHalfOpen
	b.forced = false
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
}
