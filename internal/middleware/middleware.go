package middleware

import "net/http"

type contextKey int

const (
	identityContextKey contextKey = iota
	rateLimitContextKey
	requestIDContextKey
)

// Chain wraps handler with the given middlewares, outermost first.
func Chain(handler http.Handler, wrappers ...func(http.Handler) http.Handler) http.Handler {
	for i := len(wrappers) - 1; i >= 0; i-- {
		handler = wrappers[i](handler)
	}
	return handler
}
