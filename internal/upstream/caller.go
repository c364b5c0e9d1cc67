package upstream

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Request is one outbound call, already resolved to a target service.
// The body is held in memory so the dispatcher can replay it on retries.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Response is a completed backend answer, transport errors excluded.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Caller issues one attempt against a backend. A non-nil error is a
// transport-level failure (timeout or unreachable); an application-level
// error from the backend comes back as a Response with its status.
type Caller interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Close()
}

// IsTimeout reports whether a transport error was a deadline miss, as
// opposed to a connection failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return status.Code(err) == codes.DeadlineExceeded
}
