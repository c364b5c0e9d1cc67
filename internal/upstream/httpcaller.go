package upstream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aifusion/gateway/internal/registry"
)

// HTTPCaller forwards requests to a service's primary HTTP endpoint. Each
// caller owns its transport so connection pools stay per-descriptor.
type HTTPCaller struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPCaller creates a caller for the descriptor's primary endpoint.
// Per-attempt deadlines come from the request context, so the client
// itself carries no timeout.
func NewHTTPCaller(d *registry.Descriptor) *HTTPCaller {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPCaller{
		base:   d.BaseURL(),
		client: &http.Client{Transport: transport},
	}
}

func (c *HTTPCaller) Do(ctx context.Context, req *Request) (*Response, error) {
	target := c.base.ResolveReference(&url.URL{Path: req.Path, RawQuery: req.RawQuery})

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		out.Header[key] = values
	}
	out.Host = c.base.Host

	res, err := c.client.Do(out)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		Body:       body,
	}, nil
}

func (c *HTTPCaller) Close() {
	c.client.CloseIdleConnections()
}
