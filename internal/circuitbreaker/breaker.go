package circuitbreaker

import (
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting all calls until cool-down
	StateHalfOpen              // Testing with a single probe call
)

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

// RejectedError is returned by MayCall when the circuit denies admission.
// RetryAfter carries the remaining cool-down so callers can set a retry
// hint without querying the breaker again; it is zero when no bound is
// known (half-open probe already in flight).
type RejectedError struct {
	Service    string
	State      State
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit for %s is %s, retry in %s", e.Service, e.State, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit for %s is %s", e.Service, e.State)
}

// CircuitBreaker gates outbound calls to one service. Failures within a
// rolling window trip it open; after the cool-down a single probe call
// decides whether it closes again. Every method serializes on one mutex,
// so transitions for a service are linearized no matter how many requests
// target it concurrently.
type CircuitBreaker struct {
	mutex   sync.Mutex
	service string

	state         State
	failures      int
	windowStart   time.Time
	openedAt      time.Time
	probeInFlight bool

	failureThreshold int
	window           time.Duration
	cooldown         time.Duration
}

// NewCircuitBreaker creates a closed breaker for the named service.
// threshold is the number of failures within window that trips it open;
// cooldown is how long it rejects calls before admitting a probe.
func NewCircuitBreaker(service string, threshold int, window, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		service:          service,
		state:            StateClosed,
		failureThreshold: threshold,
		window:           window,
		cooldown:         cooldown,
	}
}

// MayCall reports whether a new call to the service may be attempted.
// It returns nil when the call is admitted and a *RejectedError otherwise.
// This is the only place an open breaker moves to half-open: the
// cool-down check happens lazily here, and the first caller past the
// cool-down becomes the probe.
func (cb *CircuitBreaker) MayCall() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if remaining := cb.cooldown - time.Since(cb.openedAt); remaining > 0 {
			return &RejectedError{Service: cb.service, State: StateOpen, RetryAfter: remaining}
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
		return nil

	case StateHalfOpen:
		if cb.probeInFlight {
			return &RejectedError{Service: cb.service, State: StateHalfOpen}
		}
		cb.probeInFlight = true
		return nil

	default:
		return nil
	}
}

// RecordSuccess reports a successful terminal outcome for an admitted call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
		cb.windowStart = time.Time{}

	case StateHalfOpen:
		cb.state = StateClosed
		cb.failures = 0
		cb.windowStart = time.Time{}
		cb.openedAt = time.Time{}
		cb.probeInFlight = false

	case StateOpen:
		// Late result from a call admitted before the trip; the circuit
		// stays open until the cool-down elapses.
	}
}

// RecordFailure reports a failed terminal outcome for an admitted call.
// Callers report once per logical request, not per retry attempt, so the
// threshold keeps its meaning under retry policies.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()

	switch cb.state {
	case StateClosed:
		if cb.windowStart.IsZero() || now.Sub(cb.windowStart) >= cb.window {
			cb.windowStart = now
			cb.failures = 0
		}
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.openedAt = now
			cb.failures = 0
			cb.windowStart = time.Time{}
		}

	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = now
		cb.failures = 0
		cb.probeInFlight = false

	case StateOpen:
		// Late result from a call admitted before the trip.
	}
}

// State returns the current phase.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Snapshot is a point-in-time copy of circuit state for the read API.
type Snapshot struct {
	Phase               string     `json:"phase"`
	FailureCount        int        `json:"failure_count"`
	WindowStartedAt     *time.Time `json:"window_started_at,omitempty"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	CooldownRemainingMS int64      `json:"cooldown_remaining_ms,omitempty"`
	ProbeInFlight       bool       `json:"probe_in_flight"`
}

// Snapshot returns a copy of the current state without transitioning it.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	snap := Snapshot{
		Phase:         cb.state.String(),
		FailureCount:  cb.failures,
		ProbeInFlight: cb.probeInFlight,
	}

	if !cb.windowStart.IsZero() {
		ws := cb.windowStart
		snap.WindowStartedAt = &ws
	}

	if cb.state == StateOpen {
		oa := cb.openedAt
		snap.OpenedAt = &oa
		if remaining := cb.cooldown - time.Since(cb.openedAt); remaining > 0 {
			snap.CooldownRemainingMS = remaining.Milliseconds()
		}
	}

	return snap
}
