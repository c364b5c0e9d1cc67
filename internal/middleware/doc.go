// Package middleware carries the gateway's request plumbing: request IDs,
// request logging with timing headers, security headers, and the two
// external-collaborator boundaries. Caller identity and rate-limit
// decisions arrive pre-computed on trusted headers and are only parsed
// into context values here, never validated or enforced.
package middleware
