package stream

import (
	"sync"
)

// Handle identifies a sink inside a Registry.
type Handle uint64

// Registry maps handles to sinks.
// Streams reference sinks through handles, so that a sink that has
// been unregistered is skipped instead of being called.
type Registry struct {
	mutex sync.RWMutex
	next  Handle
	sinks map[Handle]Sink
}

// NewRegistry allocates a Registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[Handle]Sink),
	}
}

// Register adds a sink and returns its handle.
func (r *Registry) Register(s Sink) Handle {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.next++
	r.sinks[r.next] = s
	return r.next
}

// Unregister removes a sink.
func (r *Registry) Unregister(h Handle) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.sinks, h)
}

// Lookup returns the sink of a handle.
func (r *Registry) Lookup(h Handle) (Sink, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.sinks[h]
	return s, ok
}

// Len returns the number of registered sinks.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.sinks)
}
