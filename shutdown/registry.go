// Package shutdown coordinates graceful teardown: ordered cleanup
// functions, OS signal handling, and a force-exit escape hatch on
// repeated signals.
package shutdown

import (
	"context"
	"sort"
	"sync"
)

// ShutdownFunc is a cleanup function invoked during shutdown. The
// context carries the shutdown deadline.
type ShutdownFunc func(ctx context.Context) error

// entry holds a registered cleanup function with its ordering metadata.
type entry struct {
	name     string
	fn       ShutdownFunc
	priority int // lower runs earlier
}

// Registry maintains an ordered collection of cleanup functions.
// Thread-safe for concurrent registration.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a cleanup function. Lower priority values execute
// earlier. Registration after Shutdown has run is a no-op.
//
// Typical priority ranges:
//   - 0-9: flush logs and metrics
//   - 10-19: close client connections
//   - 20-29: stop background loops (samplers, pollers)
//   - 30+: release resources (databases, files)
func (r *Registry) Register(name string, priority int, fn ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, fn: fn, priority: priority})
}

// Shutdown executes all registered functions in priority order. Every
// function runs even if earlier ones fail; errors are collected and
// returned. After Shutdown the registry is closed.
func (r *Registry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	r.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})

	var errs []error
	for _, e := range sorted {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Names returns the registered names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})

	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
