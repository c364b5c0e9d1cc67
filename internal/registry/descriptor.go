package registry

import (
	"fmt"
	"net/url"
	"time"
)

// Protocol selects how the gateway talks to a backend service.
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolRPC  Protocol = "rpc"
)

// Descriptor is the static identity and declared policy of one backend
// service. Descriptors are created once at startup and never mutated;
// runtime state (health, circuit) lives in the owning components.
type Descriptor struct {
	Name     string
	Host     string
	Port     int
	RPCPort  int // 0 when the service exposes no RPC endpoint
	Protocol Protocol
	Required bool

	// Declared call policy applied by the dispatcher.
	CallTimeout time.Duration
	MaxRetries  int
}

// Address returns the primary host:port endpoint.
func (d *Descriptor) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// RPCAddress returns the host:port of the RPC endpoint, or "" when none is declared.
func (d *Descriptor) RPCAddress() string {
	if d.RPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", d.Host, d.RPCPort)
}

// BaseURL returns the HTTP base URL for the primary endpoint.
func (d *Descriptor) BaseURL() *url.URL {
	return &url.URL{Scheme: "http", Host: d.Address()}
}
