package main

import (
	"log/slog"
	"net/http"

	"github.com/aifusion/gateway/internal/admin"
	"github.com/aifusion/gateway/internal/handler"
	"github.com/aifusion/gateway/internal/metrics"
	"github.com/aifusion/gateway/internal/middleware"
)

// setupRouter mounts the admin endpoints next to the catch-all dispatcher
// and wraps everything in the shared middleware chain.
func setupRouter(log *slog.Logger, dispatcher *handler.Dispatcher, adminAPI *admin.API, collector *metrics.Collector) http.Handler {
	mux := http.NewServeMux()

	adminAPI.Register(mux)
	mux.HandleFunc("GET /metrics", collector.Handler())
	mux.Handle("/", dispatcher)

	return middleware.Chain(mux,
		middleware.WithRequestID,
		middleware.WithLogging(log),
		middleware.WithProcessTime,
		middleware.WithSecurityHeaders,
		middleware.WithIdentity,
		middleware.WithRateLimit,
	)
}
