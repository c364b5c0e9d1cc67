// Package health tracks the observed health of every backend service.
//
// One state machine per service combines two evidence streams: active
// probes fired on a fixed interval, and passive outcomes reported by the
// dispatcher for real traffic. Both feed the same consecutive-failure and
// consecutive-success counters, from which the state is derived:
//
//   - unknown: no check has completed yet
//   - healthy: the last check succeeded
//   - degraded: a few checks in a row failed
//   - unhealthy: failures kept accumulating past the degraded band
//
// A single success returns a service to healthy from any state. Health is
// advisory: it feeds the read API and aggregate readiness, it never blocks
// dispatch.
package health
