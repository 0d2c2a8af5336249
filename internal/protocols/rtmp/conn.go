// Package rtmp contains the RTMP connection engine.
//
// The engine does not perform any I/O: incoming bytes are passed to Conn.Feed,
// outgoing bytes are pulled with Conn.Output.
package rtmp

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/handshake"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/message"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/rawmessage"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

const (
	defaultChunkSize     = 65536
	defaultWindowAckSize = 2500000
	defaultPeerBandwidth = 2500000
)

// Role is the role of a Conn.
type Role int

// roles.
const (
	RoleServer Role = iota
	RoleClient
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}
	return fmt.Sprintf("unknown (%d)", int(r))
}

// State is the state of a Conn.
type State int

// states.
const (
	StateHandshakeC0Wait State = iota
	StateHandshakeC1Wait
	StateHandshakeC2Wait
	StateHandshakeS0Wait
	StateHandshakeS1Wait
	StateHandshakeS2Wait
	StateChunkHeaderWait
	StateChunkTypeWait
	StateChunkExtTimestampWait
	StateChunkDataWait
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateHandshakeC0Wait:
		return "handshakeC0Wait"
	case StateHandshakeC1Wait:
		return "handshakeC1Wait"
	case StateHandshakeC2Wait:
		return "handshakeC2Wait"
	case StateHandshakeS0Wait:
		return "handshakeS0Wait"
	case StateHandshakeS1Wait:
		return "handshakeS1Wait"
	case StateHandshakeS2Wait:
		return "handshakeS2Wait"
	case StateChunkHeaderWait:
		return "chunkHeaderWait"
	case StateChunkTypeWait:
		return "chunkTypeWait"
	case StateChunkExtTimestampWait:
		return "chunkExtTimestampWait"
	case StateChunkDataWait:
		return "chunkDataWait"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown (%d)", int(s))
}

// Conn is a RTMP connection, either on the server or on the client side.
//
// Feed must be called by a single routine. Writes, Output and Close
// can be called from any routine.
type Conn struct {
	Role          Role
	Handler       ServerHandler
	ClientHandler ClientHandler

	// client only
	App   string
	TCURL string

	// size of outgoing chunks, announced on connect.
	ChunkSize     uint32
	WindowAckSize uint32
	PeerBandwidth uint32

	// policies of NetStreams that play.
	WaitIntra         bool
	RewriteTimestamps bool

	Registry *stream.Registry

	// optional. When set, every write is passed to Enqueue and executed
	// by the routine that writes to the socket.
	Enqueue func(cb func() error) bool

	Now    func() time.Time
	Parent logger.Writer

	start         time.Time
	warnLogger    logger.Writer
	hs            *handshake.Handshake
	demuxer       *rawmessage.Demuxer
	ackWindow     uint32
	lastAck       uint64
	sentWindowAck uint32
	connectReq    *ConnectRequest

	writeMutex sync.Mutex
	muxer      *rawmessage.Muxer
	out        []byte

	streamsMutex sync.Mutex
	streams      map[uint32]*NetStream
	nextStreamID uint32

	// client only
	nextTransactionID float64
	transactions      map[float64]string

	connected     *atomic.Bool
	closed        *atomic.Bool
	bytesReceived *atomic.Uint64
	bytesSent     *atomic.Uint64
	peerAck       *atomic.Uint32
	rtt           *atomic.Duration
}

// Initialize initializes Conn.
func (c *Conn) Initialize() error {
	if c.Role == RoleClient {
		if c.ClientHandler == nil {
			return fmt.Errorf("client handler not provided")
		}
		if c.App == "" || c.TCURL == "" {
			return fmt.Errorf("app and tcUrl are required")
		}
	}

	if c.ChunkSize == 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.WindowAckSize == 0 {
		c.WindowAckSize = defaultWindowAckSize
	}
	if c.PeerBandwidth == 0 {
		c.PeerBandwidth = defaultPeerBandwidth
	}
	if c.Registry == nil {
		c.Registry = stream.NewRegistry()
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	c.start = c.Now()
	c.warnLogger = logger.NewLimitedLogger(c)
	c.demuxer = rawmessage.NewDemuxer(c.onRawMessage)
	c.muxer = rawmessage.NewMuxer()
	c.streams = make(map[uint32]*NetStream)
	c.nextStreamID = 1
	c.nextTransactionID = 1
	c.transactions = make(map[float64]string)
	c.connected = atomic.NewBool(false)
	c.closed = atomic.NewBool(false)
	c.bytesReceived = atomic.NewUint64(0)
	c.bytesSent = atomic.NewUint64(0)
	c.peerAck = atomic.NewUint32(0)
	c.rtt = atomic.NewDuration(0)

	if c.Role == RoleServer {
		c.sentWindowAck = c.WindowAckSize
		c.hs = handshake.NewServer(c.clock)
	} else {
		var out []byte
		c.hs, out = handshake.NewClient(c.clock)
		c.appendOutput(out)
	}

	return nil
}

// Log implements logger.Writer.
func (c *Conn) Log(level logger.Level, format string, args ...interface{}) {
	if c.Parent != nil {
		c.Parent.Log(level, format, args...)
	}
}

// clock returns the engine time in milliseconds.
func (c *Conn) clock() uint32 {
	return uint32(c.Now().Sub(c.start).Milliseconds())
}

// State returns the state of the connection.
func (c *Conn) State() State {
	if c.closed.Load() {
		return StateClosed
	}

	switch c.hs.State() {
	case handshake.StateC0Wait:
		return StateHandshakeC0Wait
	case handshake.StateC1Wait:
		return StateHandshakeC1Wait
	case handshake.StateC2Wait:
		return StateHandshakeC2Wait
	case handshake.StateS0Wait:
		return StateHandshakeS0Wait
	case handshake.StateS1Wait:
		return StateHandshakeS1Wait
	case handshake.StateS2Wait:
		return StateHandshakeS2Wait
	case handshake.StateDone:
	}

	switch c.demuxer.State() {
	case rawmessage.DemuxerStateHeaderWait:
		return StateChunkHeaderWait
	case rawmessage.DemuxerStateTypeWait:
		return StateChunkTypeWait
	case rawmessage.DemuxerStateExtTimestampWait:
		return StateChunkExtTimestampWait
	case rawmessage.DemuxerStateDataWait:
	}
	return StateChunkDataWait
}

// Connected returns whether the connect command has been accepted.
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// BytesReceived returns the number of bytes received.
func (c *Conn) BytesReceived() uint64 {
	return c.bytesReceived.Load()
}

// BytesSent returns the number of bytes returned by Output.
func (c *Conn) BytesSent() uint64 {
	return c.bytesSent.Load()
}

// PeerAcknowledged returns the sequence number of the last acknowledgement sent by the peer.
func (c *Conn) PeerAcknowledged() uint32 {
	return c.peerAck.Load()
}

// RTT returns the round trip time measured with the last ping.
func (c *Conn) RTT() time.Duration {
	return c.rtt.Load()
}

// InChunkSize returns the size of incoming chunks.
func (c *Conn) InChunkSize() uint32 {
	return c.demuxer.ChunkSize()
}

// Feed processes incoming bytes.
// Any returned error is fatal and the connection must be closed.
func (c *Conn) Feed(p []byte) error {
	if c.closed.Load() {
		return fmt.Errorf("terminated")
	}

	c.bytesReceived.Add(uint64(len(p)))

	if !c.hs.Done() {
		n, out, err := c.hs.Feed(p)
		if len(out) != 0 {
			c.appendOutput(out)
		}
		if err != nil {
			return err
		}

		if !c.hs.Done() {
			return nil
		}

		p = p[n:]

		err = c.onHandshakeDone()
		if err != nil {
			return err
		}
	}

	if len(p) != 0 {
		_, err := c.demuxer.Feed(p)
		if err != nil {
			return err
		}
	}

	return c.checkAcknowledge()
}

func (c *Conn) onHandshakeDone() error {
	if c.Role == RoleClient {
		return c.sendConnect()
	}
	return nil
}

func (c *Conn) checkAcknowledge() error {
	if c.ackWindow == 0 {
		return nil
	}

	received := c.bytesReceived.Load()
	if (received - c.lastAck) < uint64(c.ackWindow) {
		return nil
	}

	c.lastAck = received

	return c.Write(&message.Acknowledge{
		Value: uint32(received),
	})
}

func (c *Conn) enqueue(cb func() error) bool {
	if c.Enqueue != nil {
		return c.Enqueue(cb)
	}

	err := cb()
	if err != nil {
		c.Log(logger.Warn, "%v", err)
	}
	return true
}

func (c *Conn) appendOutput(buf []byte) {
	c.enqueue(func() error {
		c.writeMutex.Lock()
		defer c.writeMutex.Unlock()

		c.out = c.muxer.Drain(c.out)
		c.out = append(c.out, buf...)
		return nil
	})
}

// Write enqueues a message.
func (c *Conn) Write(msg message.Message) error {
	raw, err := message.Marshal(msg)
	if err != nil {
		return err
	}

	c.enqueue(func() error {
		c.writeMutex.Lock()
		defer c.writeMutex.Unlock()
		return c.muxer.Push(raw)
	})

	return nil
}

// setOutChunkSize announces and applies a new size of outgoing chunks.
// Messages enqueued before are chunked with the previous size.
func (c *Conn) setOutChunkSize(v uint32) error {
	raw, err := message.Marshal(&message.SetChunkSize{Value: v})
	if err != nil {
		return err
	}

	c.enqueue(func() error {
		c.writeMutex.Lock()
		defer c.writeMutex.Unlock()

		c.out = c.muxer.Drain(c.out)

		err := c.muxer.Push(raw)
		if err != nil {
			return err
		}

		c.out = c.muxer.Drain(c.out)
		return c.muxer.SetChunkSize(v)
	})

	return nil
}

// Output returns the bytes to send to the peer.
func (c *Conn) Output() []byte {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	c.out = c.muxer.Drain(c.out)
	out := c.out
	c.out = nil

	c.bytesSent.Add(uint64(len(out)))
	return out
}

// Ping sends a ping request. The reply updates RTT.
// It does nothing before the connect command is accepted.
func (c *Conn) Ping() error {
	if !c.connected.Load() {
		return nil
	}

	return c.Write(&message.UserControlPingRequest{
		ServerTime: c.clock(),
	})
}

// Close closes the connection and destroys its NetStreams.
// err is the reason, passed to the client handler.
func (c *Conn) Close(err error) {
	if c.closed.Swap(true) {
		return
	}

	c.streamsMutex.Lock()
	streams := c.streams
	c.streams = make(map[uint32]*NetStream)
	c.streamsMutex.Unlock()

	for _, ns := range streams {
		c.destroyNetStream(ns)
	}

	if c.Role == RoleClient {
		c.ClientHandler.OnDisconnected(err)
	}
}

// NetStreams returns the NetStreams of the connection.
func (c *Conn) NetStreams() []*NetStream {
	c.streamsMutex.Lock()
	defer c.streamsMutex.Unlock()

	ret := make([]*NetStream, 0, len(c.streams))
	for _, ns := range c.streams {
		ret = append(ret, ns)
	}
	return ret
}

func (c *Conn) netStream(id uint32) *NetStream {
	c.streamsMutex.Lock()
	defer c.streamsMutex.Unlock()
	return c.streams[id]
}

func (c *Conn) addNetStream(id uint32) *NetStream {
	ns := newNetStream(c, id)

	c.streamsMutex.Lock()
	c.streams[id] = ns
	c.streamsMutex.Unlock()

	return ns
}

func (c *Conn) deleteNetStream(id uint32) {
	c.streamsMutex.Lock()
	ns, ok := c.streams[id]
	delete(c.streams, id)
	c.streamsMutex.Unlock()

	if ok {
		c.destroyNetStream(ns)
	}
}

func (c *Conn) destroyNetStream(ns *NetStream) {
	ns.close()

	if c.Role == RoleServer && c.Handler != nil {
		c.Handler.OnNetStreamDestroyed(ns)
	}
}

func (c *Conn) onRawMessage(raw *rawmessage.Message) error {
	msg, err := message.Unmarshal(raw)
	if err != nil {
		if message.Type(raw.Type).IsControl() {
			return err
		}

		c.warnLogger.Log(logger.Warn, "%v", err)

		if typ := message.Type(raw.Type); typ == message.TypeCommandAMF0 || typ == message.TypeCommandAMF3 {
			return c.writeCallError(commandTransactionID(raw), fmt.Sprintf("invalid command: %v", err))
		}
		return nil
	}

	return c.onMessage(msg)
}

// commandTransactionID returns the transaction ID of a command that
// cannot be fully decoded, or zero.
func commandTransactionID(raw *rawmessage.Message) float64 {
	body := raw.Body
	if message.Type(raw.Type) == message.TypeCommandAMF3 && len(body) > 0 && body[0] == 0 {
		body = body[1:]
	}

	data := amf0.UnmarshalPrefix(body)
	if len(data) < 2 {
		return 0
	}

	id, _ := data[1].(float64)
	return id
}

func (c *Conn) onMessage(msg message.Message) error {
	switch msg := msg.(type) {
	case *message.SetChunkSize:
		return c.demuxer.SetChunkSize(msg.Value)

	case *message.Abort:
		c.demuxer.Abort(msg.ChunkStreamID)

	case *message.Acknowledge:
		c.peerAck.Store(msg.Value)

	case *message.SetWindowAckSize:
		c.ackWindow = msg.Value

	case *message.SetPeerBandwidth:
		if msg.Value != c.sentWindowAck {
			c.sentWindowAck = msg.Value
			return c.Write(&message.SetWindowAckSize{Value: msg.Value})
		}

	case *message.UserControlPingRequest:
		return c.Write(&message.UserControlPingResponse{
			ServerTime: msg.ServerTime,
		})

	case *message.UserControlPingResponse:
		now := c.clock()
		if now >= msg.ServerTime {
			c.rtt.Store(time.Duration(now-msg.ServerTime) * time.Millisecond)
		}

	case *message.UserControlStreamEOF:
		if ns := c.netStream(msg.StreamID); ns != nil {
			ns.Piped.OnStreamEnd()
		}

	case *message.UserControlStreamBegin, *message.UserControlStreamDry,
		*message.UserControlStreamIsRecorded, *message.UserControlSetBufferLength:

	case *message.Command:
		if c.Role == RoleClient {
			return c.onClientCommand(msg)
		}
		return c.onServerCommand(msg)

	case *message.Data:
		c.onData(msg)

	case *message.Audio:
		c.onFrame(msg.MessageStreamID, &msg.Frame)

	case *message.Video:
		c.onFrame(msg.MessageStreamID, &msg.Frame)

	case *message.Aggregate:
		subs, err := msg.Split()
		if err != nil {
			c.warnLogger.Log(logger.Warn, "invalid aggregate message: %v", err)
			return nil
		}

		for _, sub := range subs {
			err = c.onRawMessage(sub)
			if err != nil {
				return err
			}
		}

	case *message.SharedObject:
		c.Log(logger.Debug, "shared object messages are not supported")
	}

	return nil
}

func (c *Conn) onFrame(messageStreamID uint32, f *media.Frame) {
	ns := c.netStream(messageStreamID)
	if ns == nil {
		c.warnLogger.Log(logger.Warn, "received frame for unknown stream %d", messageStreamID)
		return
	}

	f.SenderTime = c.Now()

	err := ns.Piped.OnMediaFrame(f)
	if err != nil {
		c.warnLogger.Log(logger.Warn, "%v", err)
	}
}

func (c *Conn) onData(msg *message.Data) {
	ns := c.netStream(msg.MessageStreamID)
	if ns == nil {
		return
	}

	values := msg.Values
	if len(values) != 0 && values[0] == "@setDataFrame" {
		values = values[1:]
	}

	if len(values) == 0 || values[0] != "onMetaData" {
		c.Log(logger.Debug, "ignoring data message: %v", values)
		return
	}

	ns.Piped.OnMetaData(&media.MetaData{
		Timestamp: msg.Timestamp,
		Values:    values,
	})
}

func (c *Conn) writeCommand(csid uint32, msid uint32, cmd media.Command) error {
	return c.Write(&message.Command{
		Command:         cmd,
		ChunkStreamID:   csid,
		MessageStreamID: msid,
	})
}

func (c *Conn) writeStatus(ns *NetStream, transactionID float64, level string, code string, description string) error {
	return c.writeCommand(message.StreamCommandChunkStreamID, ns.ID, media.Command{
		Name:          "onStatus",
		TransactionID: transactionID,
		Arguments:     []interface{}{statusObject(level, code, description)},
	})
}
