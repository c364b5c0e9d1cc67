package health

import (
	"encoding/json"
	"time"
)

// State classifies a service's observed liveness.
type State int

const (
	StateUnknown   State = iota // No check has completed yet
	StateHealthy                // Last check succeeded
	StateDegraded               // A few consecutive failures
	StateUnhealthy              // Failures accumulated past the degraded band
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its name so read-API payloads stay
// stable if the internal ordering ever changes.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Record is the point-in-time health of one service. The state is derived
// solely from the counters; nothing sets it directly.
type Record struct {
	State                State         `json:"state"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	LastChecked          time.Time     `json:"last_checked,omitzero"`
	LastLatency          time.Duration `json:"last_latency,omitempty"`
}
