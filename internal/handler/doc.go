// Package handler implements the gateway's dispatcher: the HTTP handler
// that resolves each inbound request to a backend service, asks that
// service's circuit breaker for admission, issues the outbound call under
// the declared timeout and retry policy, reports the terminal outcome to
// the circuit breaker and the health monitor exactly once, and maps the
// result onto the caller's response.
package handler
