package circuitbreaker

import "time"

// Policy holds the trip parameters shared by every breaker in a registry.
type Policy struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
}

// Registry holds one breaker per known service. The service catalog is
// fixed at startup, so the map is built eagerly and never mutated; lookups
// need no locking and an unknown name is a caller bug, not a race.
type Registry struct {
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a closed breaker for each named service.
func NewRegistry(services []string, policy Policy) *Registry {
	breakers := make(map[string]*CircuitBreaker, len(services))
	for _, name := range services {
		breakers[name] = NewCircuitBreaker(name, policy.FailureThreshold, policy.Window, policy.Cooldown)
	}
	return &Registry{breakers: breakers}
}

// Get returns the breaker for the named service.
func (r *Registry) Get(service string) (*CircuitBreaker, bool) {
	cb, ok := r.breakers[service]
	return cb, ok
}

// Snapshots returns the current state of every breaker, keyed by service.
func (r *Registry) Snapshots() map[string]Snapshot {
	snaps := make(map[string]Snapshot, len(r.breakers))
	for name, cb := range r.breakers {
		snaps[name] = cb.Snapshot()
	}
	return snaps
}
