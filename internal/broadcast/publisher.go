package broadcast

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

// publisherControl feeds the named stream with the frames of an endpoint.
type publisherControl struct {
	stream.Unsupported

	conn *NetConnection
	ep   Endpoint

	mutex  sync.Mutex
	entry  *publishedEntry
	handle stream.Handle
}

// Publish implements stream.Control.
func (p *publisherControl) Publish(name string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.entry != nil {
		return statusError(rtmp.CodePublishBadName, fmt.Errorf("already publishing '%s'", p.entry.name))
	}

	s := p.conn.session

	e, err := s.publish(p.conn, name)
	if err != nil {
		if errors.Is(err, ErrAdmission) {
			return statusError(rtmp.CodePublishRejected, err)
		}
		return statusError(rtmp.CodePublishBadName, err)
	}

	p.entry = e
	p.handle = p.ep.Attach(e.piped)

	s.Log(logger.Info, "stream '%s' published by %s", name, p.conn.ID)

	if s.Transmit != nil {
		ts := s.Transmit(name, e.piped)
		if !s.setTransmitters(e, ts) {
			for _, t := range ts {
				t.Close()
			}
		}
	}

	s.emit(EventPublish, name, p.conn.ID)
	return nil
}

// Close implements stream.Control.
func (p *publisherControl) Close() error {
	p.stop()
	return nil
}

func (p *publisherControl) terminate() {
	p.stop()
}

func (p *publisherControl) stop() {
	p.mutex.Lock()
	e := p.entry
	h := p.handle
	p.entry = nil
	p.handle = 0
	p.mutex.Unlock()

	if e == nil {
		return
	}

	s := p.conn.session

	p.ep.Detach(h)
	p.ep.Reset()

	ws := s.unpublish(e)

	for _, t := range s.takeTransmitters(e) {
		t.Close()
	}

	e.piped.OnStreamEnd()
	e.piped.Detach(e.statsHandle)

	for _, w := range ws {
		w.evict(e)
	}

	s.Log(logger.Info, "stream '%s' unpublished, %d watchers disconnected", e.name, len(ws))
	s.emit(EventUnpublish, e.name, p.conn.ID)
}
