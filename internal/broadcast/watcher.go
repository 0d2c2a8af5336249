package broadcast

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

// watcherControl attaches an endpoint to a named stream.
type watcherControl struct {
	stream.Unsupported

	conn *NetConnection
	ep   Endpoint

	mutex  sync.Mutex
	entry  *publishedEntry
	handle stream.Handle
	paused bool
}

// Play implements stream.Control.
func (w *watcherControl) Play(name string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.entry != nil {
		return statusError(rtmp.CodePlayFailed, fmt.Errorf("already playing '%s'", w.entry.name))
	}

	s := w.conn.session

	e, err := s.addWatcher(name, w, true)
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			return statusError(rtmp.CodePlayStreamNotFound, fmt.Errorf("%w: '%s'", err, name))
		}
		return statusError(rtmp.CodePlayFailed, err)
	}

	h := e.piped.Attach(w.ep)

	if s.isClosed(e) {
		e.piped.Detach(h)
		return statusError(rtmp.CodePlayStreamNotFound, fmt.Errorf("%w: '%s'", ErrStreamNotFound, name))
	}

	w.entry = e
	w.handle = h
	w.paused = false

	s.Log(logger.Debug, "stream '%s' played by %s", name, w.conn.ID)
	return nil
}

// Pause implements stream.Control.
// A paused watcher is detached from the stream and attached again on resume.
func (w *watcherControl) Pause(pause bool, _ uint32) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.entry == nil {
		return statusError(rtmp.CodePauseFailed, fmt.Errorf("not playing"))
	}

	if pause == w.paused {
		return nil
	}

	if pause {
		w.entry.piped.Detach(w.handle)
		w.handle = 0
		w.paused = true
		return nil
	}

	h := w.entry.piped.Attach(w.ep)

	if w.conn.session.isClosed(w.entry) {
		w.entry.piped.Detach(h)
		return statusError(rtmp.CodePauseFailed, fmt.Errorf("%w: '%s'", ErrStreamNotFound, w.entry.name))
	}

	w.handle = h
	w.paused = false
	return nil
}

// Close implements stream.Control.
func (w *watcherControl) Close() error {
	w.stop()
	return nil
}

func (w *watcherControl) terminate() {
	w.stop()
}

func (w *watcherControl) stop() {
	w.mutex.Lock()
	e := w.entry
	h := w.handle
	w.entry = nil
	w.handle = 0
	w.paused = false
	w.mutex.Unlock()

	if e == nil {
		return
	}

	if h != 0 {
		e.piped.Detach(h)
	}
	w.ep.Reset()

	w.conn.session.removeWatcher(e, w)
}

// evict detaches the watcher from an unpublished stream and disconnects it.
func (w *watcherControl) evict(e *publishedEntry) {
	w.mutex.Lock()
	if w.entry != e {
		w.mutex.Unlock()
		return
	}
	h := w.handle
	w.entry = nil
	w.handle = 0
	w.paused = false
	w.mutex.Unlock()

	if h != 0 {
		e.piped.Detach(h)
	} else {
		w.ep.OnStreamEnd()
	}

	w.conn.disconnect()
}
