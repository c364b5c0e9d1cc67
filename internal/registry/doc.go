// Package registry holds the static catalog of addressable backend services
// and the ordered route table that maps URL prefixes onto them. The catalog
// is built once from configuration at process start and is immutable
// afterwards; only the health and circuit records owned by other packages
// change at runtime.
package registry
