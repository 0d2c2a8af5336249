package rtmp

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/message"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

const maxPendingOutput = 1024

// NetStream is a logical stream of a connection, identified by a message stream ID.
//
// Frames and metadata received from the peer are forwarded to the
// listeners of the embedded Piped. When the NetStream plays (on the server side)
// or publishes (on the client side), units received by the Piped are written to the peer.
type NetStream struct {
	*stream.Piped

	ID uint32

	// role of the stream, driven by play, publish, pause, seek
	// and closeStream commands. Defaults to stream.Unsupported.
	Control stream.Control

	conn *Conn

	mutex      sync.Mutex
	name       string
	requested  string
	publishing bool
	playing    bool
	out        *outputSink
	outHandle  stream.Handle
}

func newNetStream(c *Conn, id uint32) *NetStream {
	p := &stream.Piped{
		Registry: c.Registry,
	}
	p.Initialize()

	return &NetStream{
		Piped:   p,
		ID:      id,
		Control: stream.Unsupported{},
		conn:    c,
	}
}

// Conn returns the connection of the stream.
func (ns *NetStream) Conn() *Conn {
	return ns.conn
}

// Name returns the name passed to the last successful play or publish.
func (ns *NetStream) Name() string {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()
	return ns.name
}

// Publishing returns whether the stream is publishing.
func (ns *NetStream) Publishing() bool {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()
	return ns.publishing
}

// Playing returns whether the stream is playing.
func (ns *NetStream) Playing() bool {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()
	return ns.playing
}

// DroppedFrames returns the number of frames discarded by the output.
func (ns *NetStream) DroppedFrames() uint64 {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()

	if ns.out == nil {
		return 0
	}
	return ns.out.dropped.Load()
}

func (ns *NetStream) setState(name string, publishing bool, playing bool) {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()
	ns.name = name
	ns.publishing = publishing
	ns.playing = playing
}

// attachOutput attaches a sink that writes units to the peer.
// Units are held until openOutput is called.
func (ns *NetStream) attachOutput() *outputSink {
	ns.detachOutput()

	out := &outputSink{ns: ns}

	ns.mutex.Lock()
	ns.out = out
	ns.mutex.Unlock()

	h := ns.Piped.Attach(out)

	ns.mutex.Lock()
	ns.outHandle = h
	ns.mutex.Unlock()

	return out
}

func (ns *NetStream) detachOutput() {
	ns.mutex.Lock()
	out := ns.out
	h := ns.outHandle
	ns.out = nil
	ns.outHandle = 0
	ns.mutex.Unlock()

	if out != nil {
		ns.Piped.Detach(h)
		out.close()
	}
}

// stop stops publishing or playing.
func (ns *NetStream) stop() {
	err := ns.Control.Close()
	if err != nil {
		ns.conn.Log(logger.Warn, "unable to close stream %d: %v", ns.ID, err)
	}

	ns.detachOutput()
	ns.Piped.Reset()
	ns.setState("", false, false)
}

func (ns *NetStream) close() {
	ns.stop()
	ns.Piped.OnStreamEnd()
}

// outputSink writes the units it receives to the peer.
type outputSink struct {
	ns *NetStream

	mutex   sync.Mutex
	open    bool
	closed  bool
	pending []message.Message
	dropped atomic.Uint64
}

func (s *outputSink) write(msg message.Message) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}

	if !s.open {
		if len(s.pending) >= maxPendingOutput {
			s.dropped.Inc()
			return
		}
		s.pending = append(s.pending, msg)
		return
	}

	s.writeLocked(msg)
}

func (s *outputSink) writeLocked(msg message.Message) {
	raw, err := message.Marshal(msg)
	if err != nil {
		s.ns.conn.warnLogger.Log(logger.Warn, "%v", err)
		return
	}

	c := s.ns.conn
	ok := c.enqueue(func() error {
		c.writeMutex.Lock()
		defer c.writeMutex.Unlock()
		return c.muxer.Push(raw)
	})
	if !ok {
		s.dropped.Inc()
	}
}

// openOutput writes the held units, then lets following units through.
func (s *outputSink) openOutput() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, msg := range s.pending {
		s.writeLocked(msg)
	}
	s.pending = nil
	s.open = true
}

func (s *outputSink) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	s.pending = nil
}

// OnMediaFrame implements stream.Sink.
func (s *outputSink) OnMediaFrame(f *media.Frame) error {
	s.write(message.FromFrame(f, s.ns.ID))
	return nil
}

// OnMetaData implements stream.Sink.
func (s *outputSink) OnMetaData(m *media.MetaData) {
	md := *m
	if s.ns.conn.Role == RoleClient {
		md.Values = append(amf0.Data{"@setDataFrame"}, m.Values...)
	}

	s.write(&message.Data{
		MetaData:        md,
		ChunkStreamID:   message.AudioChunkStreamID,
		MessageStreamID: s.ns.ID,
	})
}

// OnCommand implements stream.Sink.
func (s *outputSink) OnCommand(c *media.Command) {
	s.write(&message.Command{
		Command:         *c,
		ChunkStreamID:   message.StreamCommandChunkStreamID,
		MessageStreamID: s.ns.ID,
	})
}

// OnStreamBegin implements stream.Sink.
func (s *outputSink) OnStreamBegin() {
	if s.ns.conn.Role == RoleServer {
		s.write(&message.UserControlStreamBegin{StreamID: s.ns.ID})
	}
}

// OnStreamEnd implements stream.Sink.
func (s *outputSink) OnStreamEnd() {
	if s.ns.conn.Role == RoleServer {
		s.write(&message.UserControlStreamEOF{StreamID: s.ns.ID})
		s.write(&message.Command{
			Command: media.Command{
				Name:      "onStatus",
				Arguments: []interface{}{statusObject(codeLevelStatus, CodePlayUnpublishNotify, "")},
			},
			ChunkStreamID:   message.StreamCommandChunkStreamID,
			MessageStreamID: s.ns.ID,
		})
	}
}

// OnStreamReset implements stream.Sink.
func (s *outputSink) OnStreamReset() {
	if s.ns.conn.Role == RoleServer {
		s.write(&message.Command{
			Command: media.Command{
				Name:      "onStatus",
				Arguments: []interface{}{statusObject(codeLevelStatus, CodePlayReset, "")},
			},
			ChunkStreamID:   message.StreamCommandChunkStreamID,
			MessageStreamID: s.ns.ID,
		})
	}
}
