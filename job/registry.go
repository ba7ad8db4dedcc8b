package job

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/ferry"
)

type entry struct {
	handler    Handler
	descriptor Descriptor
}

// Registry maps handler targets to handlers and their descriptors.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Target]entry
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Target]entry),
	}
}

// Register registers h for typ at DefaultEntry.
func (r *Registry) Register(typ string, h Handler, opts ...Option) {
	r.RegisterEntry(NewTarget(typ, DefaultEntry), h, opts...)
}

// RegisterEntry registers h for an explicit target. A later registration
// for the same target replaces the earlier one.
func (r *Registry) RegisterEntry(t Target, h Handler, opts ...Option) {
	var d Descriptor
	if desc, ok := h.(Describer); ok {
		d = desc.Describe()
	}
	for _, opt := range opts {
		opt(&d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = entry{handler: h, descriptor: d}
}

// Resolve returns the handler and descriptor for t. The error wraps
// ferry.ErrUnresolvableHandler when nothing is registered.
func (r *Registry) Resolve(t Target) (Handler, Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.handlers[t]
	if !ok {
		return nil, Descriptor{}, fmt.Errorf("%w: %s", ferry.ErrUnresolvableHandler, t)
	}
	return e.handler, e.descriptor, nil
}

// Descriptor returns the descriptor registered for t.
func (r *Registry) Descriptor(t Target) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.handlers[t]
	return e.descriptor, ok
}

// MaxAttempts returns the attempt limit declared for t. The boolean is
// false when the handler declares none, in which case the worker default
// applies.
func (r *Registry) MaxAttempts(t Target) (int, bool) {
	d, ok := r.Descriptor(t)
	if !ok || d.MaxAttempts <= 0 {
		return 0, false
	}
	return d.MaxAttempts, true
}

// Targets returns all registered targets, sorted.
func (r *Registry) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
