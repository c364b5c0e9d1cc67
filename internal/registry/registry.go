package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRouteNotFound means no route prefix matches the requested path.
	ErrRouteNotFound = errors.New("no route matches path")
	// ErrUnknownService means the named service is not in the catalog.
	ErrUnknownService = errors.New("unknown service")
)

// Route maps a URL prefix onto a service by name. Routes are matched by
// longest prefix; declaration order breaks ties.
type Route struct {
	Prefix  string `json:"prefix"`
	Service string `json:"service"`
}

// Registry is the immutable service catalog plus the ordered route table.
// All methods are safe for concurrent use without locking because nothing
// mutates after New.
type Registry struct {
	byName  map[string]*Descriptor
	ordered []*Descriptor
	routes  []Route
}

// New builds a registry from the configured descriptors and routes.
// It rejects duplicate service names and routes that reference services
// missing from the catalog.
func New(descriptors []*Descriptor, routes []Route) (*Registry, error) {
	byName := make(map[string]*Descriptor, len(descriptors))
	ordered := make([]*Descriptor, 0, len(descriptors))

	for _, d := range descriptors {
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", d.Name)
		}
		byName[d.Name] = d
		ordered = append(ordered, d)
	}

	for _, rt := range routes {
		if _, ok := byName[rt.Service]; !ok {
			return nil, fmt.Errorf("route %q: %w: %s", rt.Prefix, ErrUnknownService, rt.Service)
		}
	}

	return &Registry{
		byName:  byName,
		ordered: ordered,
		routes:  append([]Route(nil), routes...),
	}, nil
}

// Get looks a service up by name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return d, nil
}

// Resolve matches path against the route table and returns the target
// descriptor together with the winning route. The longest matching prefix
// wins; among equal-length prefixes the first declared wins.
func (r *Registry) Resolve(path string) (*Descriptor, Route, error) {
	var (
		best    Route
		bestLen = -1
	)

	for _, rt := range r.routes {
		if len(rt.Prefix) > bestLen && strings.HasPrefix(path, rt.Prefix) {
			best = rt
			bestLen = len(rt.Prefix)
		}
	}

	if bestLen < 0 {
		return nil, Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, path)
	}

	// New guarantees the reference exists.
	return r.byName[best.Service], best, nil
}

// All returns the descriptors in declaration order. The slice is a copy;
// the descriptors themselves are shared and immutable.
func (r *Registry) All() []*Descriptor {
	return append([]*Descriptor(nil), r.ordered...)
}

// Routes returns a copy of the route table in declaration order.
func (r *Registry) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Names returns the service names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, d := range r.ordered {
		names = append(names, d.Name)
	}
	return names
}
