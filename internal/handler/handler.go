package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aifusion/gateway/internal/circuitbreaker"
	"github.com/aifusion/gateway/internal/metrics"
	"github.com/aifusion/gateway/internal/middleware"
	"github.com/aifusion/gateway/internal/registry"
	"github.com/aifusion/gateway/internal/upstream"
)

// HealthReporter receives the terminal outcome of every admitted call.
type HealthReporter interface {
	ReportOutcome(service string, success bool, latency time.Duration)
}

// CallerSource yields the outbound caller for a service.
type CallerSource interface {
	For(service string) (upstream.Caller, bool)
}

// Dispatcher routes one inbound request end to end: resolve, admit, call
// with bounded retries, report the outcome once, map to a response.
type Dispatcher struct {
	logger    *slog.Logger
	registry  *registry.Registry
	breakers  *circuitbreaker.Registry
	health    HealthReporter
	upstreams CallerSource
	collector *metrics.Collector
	backoff   time.Duration
}

// NewDispatcher wires the dispatcher. collector may be nil when no
// metrics pipeline is attached; backoff is the fixed pause between retry
// attempts.
func NewDispatcher(
	logger *slog.Logger,
	reg *registry.Registry,
	breakers *circuitbreaker.Registry,
	health HealthReporter,
	upstreams CallerSource,
	collector *metrics.Collector,
	backoff time.Duration,
) *Dispatcher {
	return &Dispatcher{
		logger:    logger,
		registry:  reg,
		breakers:  breakers,
		health:    health,
		upstreams: upstreams,
		collector: collector,
		backoff:   backoff,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// A limiter upstream of the gateway may have already rejected the
	// request; such requests are terminal and touch no service state.
	if decision, ok := middleware.RateLimitFromContext(r.Context()); ok && decision.Denied {
		writeError(w, http.StatusTooManyRequests, errorDetail{
			Kind:         KindRateLimited,
			Message:      "request rejected by rate limiter",
			RetryAfterMS: decision.RetryAfter.Milliseconds(),
		})
		return
	}

	descriptor, route, err := d.registry.Resolve(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, errorDetail{
			Kind:    KindRouteNotFound,
			Message: "no route matches " + r.URL.Path,
		})
		return
	}

	d.emit(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		Service:   descriptor.Name,
	})
	d.emit(metrics.MetricEvent{
		Type:      metrics.EventServiceResolved,
		Timestamp: time.Now(),
		Service:   descriptor.Name,
	})

	outReq, ok := d.buildUpstreamRequest(w, r, descriptor, route)
	if !ok {
		return
	}

	cb, ok := d.breakers.Get(descriptor.Name)
	if !ok {
		writeError(w, http.StatusNotFound, errorDetail{
			Kind:    KindUnknownService,
			Service: descriptor.Name,
			Message: "service has no circuit breaker",
		})
		return
	}

	if err := cb.MayCall(); err != nil {
		var rejected *circuitbreaker.RejectedError
		detail := errorDetail{
			Kind:    KindCircuitOpen,
			Service: descriptor.Name,
			Message: err.Error(),
		}
		if errors.As(err, &rejected) {
			detail.Phase = rejected.State.String()
			detail.RetryAfterMS = rejected.RetryAfter.Milliseconds()
		}

		d.logger.Warn("Call rejected by circuit breaker",
			slog.String("service", descriptor.Name),
			slog.String("phase", detail.Phase))
		writeError(w, http.StatusServiceUnavailable, detail)
		return
	}

	caller, ok := d.upstreams.For(descriptor.Name)
	if !ok {
		// Admission happened, so the missing caller counts as a failure.
		d.report(cb, descriptor.Name, false, 0)
		writeError(w, http.StatusNotFound, errorDetail{
			Kind:    KindUnknownService,
			Service: descriptor.Name,
			Message: "service has no outbound caller",
		})
		return
	}

	res, latency, lastErr := d.callWithRetries(r.Context(), caller, descriptor, outReq)

	success := lastErr == nil && res.StatusCode < http.StatusInternalServerError
	d.report(cb, descriptor.Name, success, latency)

	if lastErr != nil {
		kind := KindUpstreamUnreachable
		if upstream.IsTimeout(lastErr) {
			kind = KindUpstreamTimeout
		}

		d.logger.Warn("Upstream call failed",
			slog.String("service", descriptor.Name),
			slog.String("kind", kind),
			slog.Int("attempts", descriptor.MaxRetries+1),
			slog.String("error", lastErr.Error()))

		writeError(w, http.StatusGatewayTimeout, errorDetail{
			Kind:    kind,
			Service: descriptor.Name,
			Message: "upstream call failed after retries",
		})

		d.emit(metrics.MetricEvent{
			Type:       metrics.EventResponseCompleted,
			Timestamp:  time.Now(),
			Service:    descriptor.Name,
			Duration:   latency,
			StatusCode: http.StatusGatewayTimeout,
		})
		return
	}

	d.writeResponse(w, descriptor.Name, res)

	d.emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Service:    descriptor.Name,
		Duration:   latency,
		StatusCode: res.StatusCode,
	})
}

// buildUpstreamRequest turns the inbound request into an outbound one.
// RPC descriptors additionally require a POST whose path after the route
// prefix names a gRPC full method; malformed rpc requests are a client
// error answered before any admission check, so no service state moves.
func (d *Dispatcher) buildUpstreamRequest(
	w http.ResponseWriter,
	r *http.Request,
	descriptor *registry.Descriptor,
	route registry.Route,
) (*upstream.Request, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorDetail{
			Kind:    KindBadRPCRequest,
			Service: descriptor.Name,
			Message: "unreadable request body",
		})
		return nil, false
	}

	outReq := &upstream.Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   forwardedHeader(r),
		Body:     body,
	}

	if descriptor.Protocol == registry.ProtocolRPC {
		remaining := strings.TrimPrefix(r.URL.Path, route.Prefix)
		parts := strings.Split(remaining, "/")
		if r.Method != http.MethodPost || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			writeError(w, http.StatusBadRequest, errorDetail{
				Kind:    KindBadRPCRequest,
				Service: descriptor.Name,
				Message: "rpc routes require POST to <prefix><package.Service>/<Method>",
			})
			return nil, false
		}

		outReq.Path = "/" + remaining
		outReq.RawQuery = ""
	}

	return outReq, true
}

// callWithRetries runs the bounded retry loop. Only transport errors are
// retried; a response of any status ends the loop. Every attempt gets its
// own deadline, and the pauses between attempts respect the inbound
// request's cancellation.
func (d *Dispatcher) callWithRetries(
	ctx context.Context,
	caller upstream.Caller,
	descriptor *registry.Descriptor,
	outReq *upstream.Request,
) (*upstream.Response, time.Duration, error) {
	var (
		res     *upstream.Response
		lastErr error
	)

	start := time.Now()
	attempts := descriptor.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, time.Since(start), ctx.Err()
			case <-time.After(d.backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, descriptor.CallTimeout)
		res, lastErr = caller.Do(attemptCtx, outReq)
		cancel()

		if lastErr == nil {
			break
		}

		d.logger.Debug("Upstream attempt failed",
			slog.String("service", descriptor.Name),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()))
	}

	return res, time.Since(start), lastErr
}

// report feeds the terminal outcome to the circuit breaker and the health
// monitor, once per logical request regardless of retry count.
func (d *Dispatcher) report(cb *circuitbreaker.CircuitBreaker, service string, success bool, latency time.Duration) {
	before := cb.State()

	if success {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}

	if after := cb.State(); after != before {
		d.logger.Warn("Circuit state changed",
			slog.String("service", service),
			slog.String("from", before.String()),
			slog.String("to", after.String()))
		d.emit(metrics.MetricEvent{
			Type:      metrics.EventCircuitStateChanged,
			Timestamp: time.Now(),
			Service:   service,
			Phase:     after.String(),
		})
	}

	d.health.ReportOutcome(service, success, latency)
}

// writeResponse forwards the backend answer verbatim plus the routing
// annotation header.
func (d *Dispatcher) writeResponse(w http.ResponseWriter, service string, res *upstream.Response) {
	dst := w.Header()
	for key, values := range sanitizeHeader(res.Header) {
		dst[key] = values
	}
	dst.Set("X-Gateway-Service", service)

	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

// forwardedHeader copies the inbound headers minus hop-by-hop ones and
// appends the client to X-Forwarded-For.
func forwardedHeader(r *http.Request) http.Header {
	header := sanitizeHeader(r.Header)

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		if prior := header.Get("X-Forwarded-For"); prior != "" {
			header.Set("X-Forwarded-For", prior+", "+host)
		} else {
			header.Set("X-Forwarded-For", host)
		}
	}

	return header
}

var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func sanitizeHeader(src http.Header) http.Header {
	header := src.Clone()
	if header == nil {
		return http.Header{}
	}

	for _, token := range header.Values("Connection") {
		for _, name := range strings.Split(token, ",") {
			if name = strings.TrimSpace(name); name != "" {
				header.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		header.Del(name)
	}

	return header
}

func (d *Dispatcher) emit(event metrics.MetricEvent) {
	if d.collector == nil {
		return
	}

	select {
	case d.collector.EventChannel() <- event:
	default:
	}
}
