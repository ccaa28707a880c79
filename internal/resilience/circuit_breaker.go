// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience isolates the pipeline from backends that keep failing.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/streamstage/internal/metrics"
)

// State is the breaker position for one backend.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	defaultThreshold    = 5
	defaultResetTimeout = 30 * time.Second
	// probeRetryAfter is the hint returned while a half-open probe is in flight.
	probeRetryAfter = time.Second
)

// ErrCircuitOpen is matched by every rejection of the breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError is returned by Allow while a backend is rejected. RetryAfter is
// the time until the breaker will admit a probe again.
type OpenError struct {
	Backend    string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: %s (retry in %s)", ErrCircuitOpen, e.Backend, e.RetryAfter.Round(time.Second))
}

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker counts consecutive failed exchanges against one backend. At
// threshold it opens and refuses leases until resetTimeout has elapsed; it
// then admits a single probe whose outcome closes or re-opens it.
type CircuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	clock        clock

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock substitutes the time source.
func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// NewCircuitBreaker creates a closed breaker for the named backend.
// Non-positive settings fall back to 5 failures and 30s.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}
	cb := &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        realClock{},
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetCircuitBreakerState(name, string(StateClosed))
	return cb
}

// Allow admits one exchange or returns an *OpenError. Every admitted exchange
// must be reported with RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		elapsed := cb.clock.Now().Sub(cb.openedAt)
		if elapsed < cb.resetTimeout {
			return &OpenError{Backend: cb.name, RetryAfter: cb.resetTimeout - elapsed}
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return nil
	case StateHalfOpen:
		if cb.probing {
			return &OpenError{Backend: cb.name, RetryAfter: probeRetryAfter}
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// RecordFailure counts a failed exchange. A failed probe re-opens at once.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.probing = false
		metrics.RecordCircuitBreakerTrip(cb.name, "probe_failed")
		cb.setState(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.threshold:
		metrics.RecordCircuitBreakerTrip(cb.name, "threshold_exceeded")
		cb.setState(StateOpen)
	}
}

// RecordSuccess clears the failure streak and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	cb.setState(StateClosed)
}

// caller holds mu
func (cb *CircuitBreaker) setState(s State) {
	if cb.state == s {
		return
	}
	cb.state = s
	if s == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetCircuitBreakerState(cb.name, string(s))
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
