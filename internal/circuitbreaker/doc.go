// Package circuitbreaker implements per-service circuit breakers for the
// gateway's upstream calls.
//
// A breaker prevents cascading failures by rejecting calls to a service
// that keeps failing. It has three states:
//
//   - closed: normal operation, calls pass through
//   - open: service failing, calls rejected until the cool-down elapses
//   - half_open: one probe call tests whether the service recovered
//
// Failures only count toward the trip threshold when they fall inside a
// rolling window; stale failures age out when the window restarts.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(names, policy)
//	cb, _ := registry.Get("identity")
//	if err := cb.MayCall(); err == nil {
//	    // Make the call...
//	    if failed {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
