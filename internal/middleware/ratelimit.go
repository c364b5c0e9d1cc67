package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// RateLimitDecision is a verdict an external limiter stamped on the
// request before it reached the gateway. A denied decision is terminal:
// the dispatcher must not forward the request.
type RateLimitDecision struct {
	Denied     bool
	RetryAfter time.Duration
}

const (
	headerRateLimitDecision   = "X-RateLimit-Decision"
	headerRateLimitRetryAfter = "X-RateLimit-Retry-After"
)

// WithRateLimit surfaces a pre-computed limiter decision as a context
// value. It applies no policy of its own.
func WithRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerRateLimitDecision) != "deny" {
			next.ServeHTTP(w, r)
			return
		}

		decision := RateLimitDecision{Denied: true}
		if raw := r.Header.Get(headerRateLimitRetryAfter); raw != "" {
			if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
				decision.RetryAfter = time.Duration(seconds) * time.Second
			}
		}

		ctx := context.WithValue(r.Context(), rateLimitContextKey, decision)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitFromContext returns the limiter decision, if one was attached.
func RateLimitFromContext(ctx context.Context) (RateLimitDecision, bool) {
	decision, ok := ctx.Value(rateLimitContextKey).(RateLimitDecision)
	return decision, ok
}
