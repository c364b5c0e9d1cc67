// Package upstream issues the gateway's outbound calls.
//
// Each service descriptor gets one caller matching its declared protocol:
// an HTTP caller with its own keepalive-limited transport, or a gRPC
// caller holding a lazily dialed connection that forwards unary request
// bytes without interpreting them. Callers are built once at startup and
// reused across requests; they carry no retry or timeout policy of their
// own, that belongs to the dispatcher.
package upstream
