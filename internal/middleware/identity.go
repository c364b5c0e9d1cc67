package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the already-validated caller attached by the upstream auth
// collaborator. Permissions are opaque to the gateway.
type Identity struct {
	Subject     string
	Permissions []string
}

const (
	headerAuthSubject     = "X-Auth-Subject"
	headerAuthPermissions = "X-Auth-Permissions"
)

// WithIdentity parses the trusted identity headers into a context value.
// Requests without a subject pass through anonymously; enforcement is not
// this component's concern.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := r.Header.Get(headerAuthSubject)
		if subject == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity := Identity{Subject: subject}
		if raw := r.Header.Get(headerAuthPermissions); raw != "" {
			for _, p := range strings.Split(raw, ",") {
				if p = strings.TrimSpace(p); p != "" {
					identity.Permissions = append(identity.Permissions, p)
				}
			}
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the caller identity, if one was attached.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}
