package models

import "slices"

// TypeRegistry resolves wire type names to event types. It is immutable once built.
type TypeRegistry struct {
	types map[string]EventType
}

// AllTypes lists every event variant.
var AllTypes = []EventType{
	TypeExploitation,
	TypePropagation,
	TypePasswordRestoration,
	TypeFileEncryption,
	TypePingScan,
	TypeTCPScan,
	TypeCredentialsStolen,
	TypeOSDiscovery,
	TypeHostnameDiscovery,
	TypeAgentShutdown,
}

// NewTypeRegistry builds a registry of the given types.
func NewTypeRegistry(types ...EventType) *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]EventType, len(types))}
	for _, t := range types {
		r.types[string(t)] = t
	}
	return r
}

// DefaultTypeRegistry returns a registry of every known variant.
func DefaultTypeRegistry() *TypeRegistry {
	return NewTypeRegistry(AllTypes...)
}

// Lookup resolves name. Matching is exact.
func (r *TypeRegistry) Lookup(name string) (EventType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns the registered types in sorted order.
func (r *TypeRegistry) Types() []EventType {
	out := make([]EventType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
