package circuitbreaker

import (
	"sync"
	"time"

	"github.com/calmisko/gatepipe/internal/observability"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and calls are rejected
	// until the reopen deadline passes.
	StateOpen

	// StateHalfOpen indicates the reopen deadline has passed and a
	// single probe call is in flight.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
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

// CircuitBreaker guards one upstream. The circuit is closed by default;
// FailureThreshold consecutive failures open it and set a reopen
// deadline. While the deadline is in the future every check is
// rejected. Once it passes, a single probe call is admitted: its
// success closes the circuit, its failure re-opens it with a fresh
// deadline. Accumulating SuccessThreshold consecutive successes while
// open also force-closes the circuit.
type CircuitBreaker struct {
	name    string
	config  Config
	logger  observability.Logger
	metrics *Metrics

	mu            sync.Mutex
	state         State
	reopenAt      time.Time
	probeInFlight bool

	consecutiveFailures  int
	consecutiveSuccesses int
	totalFailures        int
	totalSuccesses       int
	lastFailure          time.Time
	lastTransition       time.Time
}

// NewCircuitBreaker creates a circuit breaker for the named upstream.
// A nil config uses defaults; logger and metrics may be nil.
func NewCircuitBreaker(name string, config *Config, logger observability.Logger, metrics *Metrics) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &CircuitBreaker{
		name:           name,
		config:         config.withDefaults(),
		logger:         logger,
		metrics:        metrics,
		state:          StateClosed,
		lastTransition: time.Now(),
	}
}

// Allow reports whether a call to the upstream may proceed. The first
// check after the reopen deadline passes is admitted as the probe;
// further checks are rejected until the probe completes.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	var allowed bool

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if now.Before(cb.reopenAt) {
			allowed = false
			break
		}
		// Deadline passed: move to half-open and admit this caller as
		// the probe, optimistically clearing the failure streak.
		cb.transitionTo(StateHalfOpen)
		cb.consecutiveFailures = 0
		cb.probeInFlight = true
		allowed = true

	case StateHalfOpen:
		allowed = !cb.probeInFlight
		if allowed {
			cb.probeInFlight = true
		}
	}

	if cb.metrics != nil {
		cb.metrics.RecordCheck(cb.name, allowed)
	}
	return allowed
}

// Ready reports whether a call would currently be admitted, without
// reserving the half-open probe slot. Selection logic uses it to
// filter candidates and calls Allow only for the chosen upstream.
func (cb *CircuitBreaker) Ready() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		return !time.Now().Before(cb.reopenAt)
	case StateHalfOpen:
		return !cb.probeInFlight
	default:
		return false
	}
}

// RecordSuccess records a successful upstream call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++
	cb.consecutiveSuccesses++
	cb.consecutiveFailures = 0

	switch cb.state {
	case StateHalfOpen:
		// The probe succeeded.
		cb.close()

	case StateOpen:
		// Calls that were already in flight when the circuit opened may
		// still complete; enough of them closes the circuit early.
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.close()
		}
	}
}

// RecordFailure records a failed upstream call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.totalFailures++
	cb.consecutiveFailures++
	cb.consecutiveSuccesses = 0
	cb.lastFailure = now

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.open(now)
		}

	case StateHalfOpen:
		// The probe failed: back to open with a fresh deadline.
		cb.open(now)
	}
}

// open transitions to the open state and arms the reopen deadline.
// Callers hold cb.mu.
func (cb *CircuitBreaker) open(now time.Time) {
	cb.transitionTo(StateOpen)
	cb.reopenAt = now.Add(cb.config.OpenTimeout)
	cb.probeInFlight = false
}

// close transitions to the closed state and clears open-state tracking.
// Callers hold cb.mu.
func (cb *CircuitBreaker) close() {
	cb.transitionTo(StateClosed)
	cb.reopenAt = time.Time{}
	cb.probeInFlight = false
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
}

// transitionTo switches states, logging and counting the transition.
// Callers hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	if oldState == newState {
		return
	}

	cb.state = newState
	cb.lastTransition = time.Now()

	if cb.metrics != nil {
		cb.metrics.RecordTransition(cb.name, oldState, newState)
	}

	cb.logger.Info("circuit breaker state changed",
		observability.String("upstream", cb.name),
		observability.String("from", oldState.String()),
		observability.String("to", newState.String()),
	)
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the upstream name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the circuit closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.close()
	cb.totalFailures = 0
	cb.totalSuccesses = 0

	cb.logger.Info("circuit breaker reset",
		observability.String("upstream", cb.name),
	)
}

// Stats holds a snapshot of circuit breaker counters.
type Stats struct {
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	TotalFailures        int
	TotalSuccesses       int
	ReopenAt             time.Time
	LastFailure          time.Time
	LastTransition       time.Time
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:                cb.state,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		TotalFailures:        cb.totalFailures,
		TotalSuccesses:       cb.totalSuccesses,
		ReopenAt:             cb.reopenAt,
		LastFailure:          cb.lastFailure,
		LastTransition:       cb.lastTransition,
	}
}
