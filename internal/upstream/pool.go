package upstream

import "github.com/aifusion/gateway/internal/registry"

// Pool holds one caller per service, built once from the catalog. Lookups
// need no locking because the map never mutates after New.
type Pool struct {
	callers map[string]Caller
}

// NewPool builds a caller for every descriptor, picking the protocol the
// descriptor declares.
func NewPool(descriptors []*registry.Descriptor) *Pool {
	callers := make(map[string]Caller, len(descriptors))
	for _, d := range descriptors {
		if d.Protocol == registry.ProtocolRPC {
			callers[d.Name] = NewGRPCCaller(d)
		} else {
			callers[d.Name] = NewHTTPCaller(d)
		}
	}

	return &Pool{callers: callers}
}

// For returns the caller for the named service.
func (p *Pool) For(service string) (Caller, bool) {
	c, ok := p.callers[service]
	return c, ok
}

// Close releases every caller's connections.
func (p *Pool) Close() {
	for _, c := range p.callers {
		c.Close()
	}
}
