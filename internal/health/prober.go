package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/aifusion/gateway/internal/registry"
)

// ServiceProber checks backend liveness over the descriptor's declared
// protocol: HTTP GET /health for http services, the standard gRPC health
// service for rpc ones. gRPC connections are dialed lazily and reused
// across probes.
type ServiceProber struct {
	client *http.Client

	mutex sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewServiceProber creates a prober. timeout bounds the HTTP probe client;
// gRPC probes rely on the context deadline supplied per probe.
func NewServiceProber(timeout time.Duration) *ServiceProber {
	return &ServiceProber{
		client: &http.Client{Timeout: timeout},
		conns:  make(map[string]*grpc.ClientConn),
	}
}

// Probe issues one liveness check against the descriptor's declared protocol.
func (p *ServiceProber) Probe(ctx context.Context, d *registry.Descriptor) error {
	if d.Protocol == registry.ProtocolRPC {
		return p.probeRPC(ctx, d)
	}
	return p.probeHTTP(ctx, d)
}

func (p *ServiceProber) probeHTTP(ctx context.Context, d *registry.Descriptor) error {
	healthURL := d.BaseURL().ResolveReference(&url.URL{Path: "/health"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return err
	}

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("health endpoint returned %d", res.StatusCode)
	}

	return nil
}

func (p *ServiceProber) probeRPC(ctx context.Context, d *registry.Descriptor) error {
	conn, err := p.conn(d)
	if err != nil {
		return err
	}

	res, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return err
	}

	if res.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("health service reported %s", res.GetStatus())
	}

	return nil
}

func (p *ServiceProber) conn(d *registry.Descriptor) (*grpc.ClientConn, error) {
	addr := d.RPCAddress()
	if addr == "" {
		return nil, fmt.Errorf("service %s declares no rpc endpoint", d.Name)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if conn, ok := p.conns[d.Name]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, err
	}

	p.conns[d.Name] = conn
	return conn, nil
}

// Close tears down the prober's gRPC connections.
func (p *ServiceProber) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for name, conn := range p.conns {
		_ = conn.Close()
		delete(p.conns, name)
	}
}
