package stream

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/bluenviron/rtmpcast/internal/media"
)

type listenerSet []Handle

// Stream fans out media units to a set of listeners.
//
// The listener set is an immutable snapshot that is replaced on every
// change. Fan-out iterates the current snapshot without holding locks,
// therefore listeners can be added or removed during a fan-out, and
// concurrent fan-outs do not exclude each other.
type Stream struct {
	registry *Registry

	mutex     sync.Mutex
	listeners atomic.Pointer[listenerSet]
}

// NewStream allocates a Stream. Listeners are resolved through registry.
func NewStream(registry *Registry) *Stream {
	s := &Stream{
		registry: registry,
	}
	s.listeners.Store(&listenerSet{})
	return s
}

// Registry returns the registry of the stream.
func (s *Stream) Registry() *Registry {
	return s.registry
}

// AddListener adds a registered sink to the listener set.
func (s *Stream) AddListener(h Handle) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.addListenerLocked(h)
}

func (s *Stream) addListenerLocked(h Handle) {
	cur := *s.listeners.Load()
	for _, o := range cur {
		if o == h {
			return
		}
	}

	next := make(listenerSet, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, h)
	s.listeners.Store(&next)
}

// RemoveListener removes a sink from the listener set.
func (s *Stream) RemoveListener(h Handle) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.removeListenerLocked(h)
}

func (s *Stream) removeListenerLocked(h Handle) {
	cur := *s.listeners.Load()

	next := make(listenerSet, 0, len(cur))
	for _, o := range cur {
		if o != h {
			next = append(next, o)
		}
	}

	if len(next) != len(cur) {
		s.listeners.Store(&next)
	}
}

// Attach registers a sink and adds it to the listener set.
func (s *Stream) Attach(sink Sink) Handle {
	h := s.registry.Register(sink)
	s.AddListener(h)
	return h
}

// Detach removes a sink from the listener set and unregisters it.
func (s *Stream) Detach(h Handle) {
	s.RemoveListener(h)
	s.registry.Unregister(h)
}

// Listeners returns a snapshot of the listener set.
func (s *Stream) Listeners() []Handle {
	return *s.listeners.Load()
}

// ListenerCount returns the number of listeners.
func (s *Stream) ListenerCount() int {
	return len(*s.listeners.Load())
}

func (s *Stream) prune(dead []Handle) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, h := range dead {
		s.removeListenerLocked(h)
	}
}

func (s *Stream) forEach(set listenerSet, cb func(Sink)) {
	var dead []Handle

	for _, h := range set {
		sink, ok := s.registry.Lookup(h)
		if !ok {
			dead = append(dead, h)
			continue
		}
		cb(sink)
	}

	if dead != nil {
		s.prune(dead)
	}
}

func (s *Stream) sendMediaFrame(set listenerSet, f *media.Frame) error {
	var ret error
	s.forEach(set, func(sink Sink) {
		err := sink.OnMediaFrame(f)
		if err != nil && ret == nil {
			ret = err
		}
	})
	return ret
}

// SendMediaFrame delivers a frame to all listeners.
// Every listener is called; the first error is returned.
func (s *Stream) SendMediaFrame(f *media.Frame) error {
	return s.sendMediaFrame(*s.listeners.Load(), f)
}

// SendMetaData delivers metadata to all listeners.
func (s *Stream) SendMetaData(m *media.MetaData) {
	s.forEach(*s.listeners.Load(), func(sink Sink) { sink.OnMetaData(m) })
}

// SendCommand delivers a command to all listeners.
func (s *Stream) SendCommand(c *media.Command) {
	s.forEach(*s.listeners.Load(), func(sink Sink) { sink.OnCommand(c) })
}

// SendStreamBegin notifies all listeners of the stream start.
func (s *Stream) SendStreamBegin() {
	s.forEach(*s.listeners.Load(), func(sink Sink) { sink.OnStreamBegin() })
}

// SendStreamEnd notifies all listeners of the stream end.
func (s *Stream) SendStreamEnd() {
	s.forEach(*s.listeners.Load(), func(sink Sink) { sink.OnStreamEnd() })
}

// SendStreamReset notifies all listeners of a stream reset.
func (s *Stream) SendStreamReset() {
	s.forEach(*s.listeners.Load(), func(sink Sink) { sink.OnStreamReset() })
}
