package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// WithLogging logs one line per completed request and stamps the
// X-Process-Time header with the handling duration in seconds.
func WithLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			logger.Info("Gateway request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("client", ExtractClientIP(r)),
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", duration))
		})
	}
}

// WithProcessTime stamps the timing annotation header before the response
// is written. It runs inside WithLogging so the header reflects only the
// downstream handling.
func WithProcessTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &processTimeWriter{ResponseWriter: w, start: start}
		next.ServeHTTP(wrapped, r)
	})
}

type processTimeWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *processTimeWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.Header().Set("X-Process-Time", fmt.Sprintf("%.3f", time.Since(w.start).Seconds()))
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *processTimeWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// ExtractClientIP prefers the first X-Forwarded-For hop, falling back to
// the connection's remote address.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
