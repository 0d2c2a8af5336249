// Package stream contains the media stream graph.
package stream

import (
	"errors"

	"github.com/bluenviron/rtmpcast/internal/media"
)

// ErrUnsupported is returned by controls that do not implement an operation.
var ErrUnsupported = errors.New("operation not supported")

// Sink receives media units.
type Sink interface {
	OnMediaFrame(*media.Frame) error
	OnMetaData(*media.MetaData)
	OnCommand(*media.Command)
	OnStreamBegin()
	OnStreamEnd()
	OnStreamReset()
}

// Source fans out media units to attached sinks.
type Source interface {
	Attach(Sink) Handle
	Detach(Handle)
}

// Control drives a stream.
type Control interface {
	Play(name string) error
	Publish(name string) error
	Pause(pause bool, position uint32) error
	Seek(position uint32) error
	Close() error
}

// Unsupported is a Control that rejects every operation.
// Roles embed it and override what they support.
type Unsupported struct{}

// Play implements Control.
func (Unsupported) Play(string) error {
	return ErrUnsupported
}

// Publish implements Control.
func (Unsupported) Publish(string) error {
	return ErrUnsupported
}

// Pause implements Control.
func (Unsupported) Pause(bool, uint32) error {
	return ErrUnsupported
}

// Seek implements Control.
func (Unsupported) Seek(uint32) error {
	return ErrUnsupported
}

// Close implements Control.
func (Unsupported) Close() error {
	return nil
}

// SinkFuncs is a Sink made of optional callbacks.
type SinkFuncs struct {
	MediaFrame  func(*media.Frame) error
	MetaData    func(*media.MetaData)
	Command     func(*media.Command)
	StreamBegin func()
	StreamEnd   func()
	StreamReset func()
}

// OnMediaFrame implements Sink.
func (s *SinkFuncs) OnMediaFrame(f *media.Frame) error {
	if s.MediaFrame != nil {
		return s.MediaFrame(f)
	}
	return nil
}

// OnMetaData implements Sink.
func (s *SinkFuncs) OnMetaData(m *media.MetaData) {
	if s.MetaData != nil {
		s.MetaData(m)
	}
}

// OnCommand implements Sink.
func (s *SinkFuncs) OnCommand(c *media.Command) {
	if s.Command != nil {
		s.Command(c)
	}
}

// OnStreamBegin implements Sink.
func (s *SinkFuncs) OnStreamBegin() {
	if s.StreamBegin != nil {
		s.StreamBegin()
	}
}

// OnStreamEnd implements Sink.
func (s *SinkFuncs) OnStreamEnd() {
	if s.StreamEnd != nil {
		s.StreamEnd()
	}
}

// OnStreamReset implements Sink.
func (s *SinkFuncs) OnStreamReset() {
	if s.StreamReset != nil {
		s.StreamReset()
	}
}
