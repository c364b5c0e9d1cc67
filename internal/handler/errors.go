package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Stable failure kinds carried in every error body. Callers key their
// retry behavior off these, not off HTTP statuses.
const (
	KindRouteNotFound       = "route_not_found"
	KindUnknownService      = "unknown_service"
	KindBadRPCRequest       = "bad_rpc_request"
	KindRateLimited         = "rate_limited"
	KindCircuitOpen         = "circuit_open"
	KindUpstreamTimeout     = "upstream_timeout"
	KindUpstreamUnreachable = "upstream_unreachable"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail carries enough circuit/health state for a caller to back
// off without a separate registry query.
type errorDetail struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	Service      string `json:"service,omitempty"`
	Phase        string `json:"phase,omitempty"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

func writeError(w http.ResponseWriter, status int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	if detail.RetryAfterMS > 0 {
		// Round up so a client honoring Retry-After never retries early.
		w.Header().Set("Retry-After", strconv.FormatInt((detail.RetryAfterMS+999)/1000, 10))
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}
