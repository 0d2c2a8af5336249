package rtmp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/message"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

// ConnectRequest is a connect command received by a server-side Conn.
type ConnectRequest struct {
	App           string
	TCURL         string
	Object        amf0.Object
	TransactionID float64

	conn *Conn
	once sync.Once
}

// Conn returns the connection of the request.
func (r *ConnectRequest) Conn() *Conn {
	return r.conn
}

// Query returns the query parameters of the application name.
func (r *ConnectRequest) Query() url.Values {
	return queryOf(r.App)
}

// Accept accepts the request.
func (r *ConnectRequest) Accept() error {
	var err error
	r.once.Do(func() {
		err = r.conn.acceptConnect(r)
	})
	return err
}

// Reject rejects the request.
func (r *ConnectRequest) Reject(description string) error {
	var err error
	r.once.Do(func() {
		err = r.conn.writeCommand(message.CommandChunkStreamID, 0, media.Command{
			Name:          "_error",
			TransactionID: r.TransactionID,
			Arguments:     []interface{}{statusObject(codeLevelError, CodeConnectRejected, description)},
		})
	})
	return err
}

// queryOf returns the query parameters after the first question mark of s.
func queryOf(s string) url.Values {
	i := strings.IndexByte(s, '?')
	if i < 0 {
		return url.Values{}
	}

	v, err := url.ParseQuery(s[i+1:])
	if err != nil {
		return url.Values{}
	}
	return v
}

// PathOf returns s without query parameters.
func PathOf(s string) string {
	i := strings.IndexByte(s, '?')
	if i < 0 {
		return s
	}
	return s[:i]
}

// QueryOf returns the query parameters of a stream name or an application name.
func QueryOf(s string) url.Values {
	return queryOf(s)
}

func (c *Conn) acceptConnect(req *ConnectRequest) error {
	err := c.Write(&message.SetWindowAckSize{
		Value: c.WindowAckSize,
	})
	if err != nil {
		return err
	}

	err = c.Write(&message.SetPeerBandwidth{
		Value: c.PeerBandwidth,
		Type:  message.LimitTypeDynamic,
	})
	if err != nil {
		return err
	}

	err = c.setOutChunkSize(c.ChunkSize)
	if err != nil {
		return err
	}

	oe, _ := req.Object.GetFloat64("objectEncoding")

	err = c.writeCommand(message.CommandChunkStreamID, 0, media.Command{
		Name:          "_result",
		TransactionID: req.TransactionID,
		Object: amf0.Object{
			{Key: "fmsVer", Value: "LNX 9,0,124,2"},
			{Key: "capabilities", Value: float64(31)},
		},
		Arguments: []interface{}{
			amf0.Object{
				{Key: "level", Value: codeLevelStatus},
				{Key: "code", Value: CodeConnectSuccess},
				{Key: "description", Value: "Connection succeeded."},
				{Key: "objectEncoding", Value: oe},
			},
		},
	})
	if err != nil {
		return err
	}

	c.connected.Store(true)
	return nil
}

func (c *Conn) writeCallError(transactionID float64, description string) error {
	return c.writeCommand(message.CommandChunkStreamID, 0, media.Command{
		Name:          "_error",
		TransactionID: transactionID,
		Arguments:     []interface{}{statusObject(codeLevelError, CodeCallFailed, description)},
	})
}

func (c *Conn) onServerCommand(msg *message.Command) error {
	if msg.MessageStreamID != 0 {
		ns := c.netStream(msg.MessageStreamID)
		if ns == nil {
			return c.writeCallError(msg.TransactionID, fmt.Sprintf("stream %d not found", msg.MessageStreamID))
		}
		return c.onStreamCommand(ns, msg)
	}

	switch msg.Name {
	case "connect":
		return c.onConnect(msg)

	case "createStream":
		if !c.connected.Load() {
			return c.writeCallError(msg.TransactionID, "not connected")
		}

		id := c.nextStreamID
		c.nextStreamID++

		ns := c.addNetStream(id)
		if c.Handler != nil {
			c.Handler.OnNetStreamCreated(ns)
		}

		return c.writeCommand(message.CommandChunkStreamID, 0, media.Command{
			Name:          "_result",
			TransactionID: msg.TransactionID,
			Arguments:     []interface{}{float64(id)},
		})

	case "deleteStream":
		if id, ok := streamIDArgument(msg.Arguments); ok {
			c.deleteNetStream(id)
		}
		return nil

	case "releaseStream", "FCPublish", "FCUnpublish", "getStreamLength", "_checkbw":
		return nil

	case "_result", "_error", "onBWDone":
		return nil
	}

	c.Log(logger.Debug, "unhandled command: %s", msg.Name)
	if c.Handler != nil {
		c.Handler.OnCommand(nil, &msg.Command)
	}
	return nil
}

func streamIDArgument(args []interface{}) (uint32, bool) {
	if len(args) < 1 {
		return 0, false
	}

	id, ok := args[0].(float64)
	if !ok || id < 1 {
		return 0, false
	}

	return uint32(id), true
}

func (c *Conn) onConnect(msg *message.Command) error {
	if c.connectReq != nil {
		return c.writeCallError(msg.TransactionID, "already connected")
	}

	obj, ok := amf0.AsObject(msg.Object)
	if !ok {
		return c.rejectInvalidConnect(msg)
	}

	app, ok := obj.GetString("app")
	if !ok {
		return c.rejectInvalidConnect(msg)
	}

	tcURL, ok := obj.GetString("tcUrl")
	if !ok {
		tcURL, ok = obj.GetString("tcurl")
		if !ok {
			return c.rejectInvalidConnect(msg)
		}
	}

	req := &ConnectRequest{
		App:           app,
		TCURL:         strings.Trim(tcURL, "'"),
		Object:        obj,
		TransactionID: msg.TransactionID,
		conn:          c,
	}
	c.connectReq = req

	if c.Handler == nil {
		return req.Accept()
	}

	c.Handler.OnConnect(req)
	return nil
}

func (c *Conn) rejectInvalidConnect(msg *message.Command) error {
	return c.writeCommand(message.CommandChunkStreamID, 0, media.Command{
		Name:          "_error",
		TransactionID: msg.TransactionID,
		Arguments:     []interface{}{statusObject(codeLevelError, CodeConnectRejected, "invalid connect command")},
	})
}

// statusOfError returns the status code and the description that describe err.
func statusOfError(err error, unsupportedCode string, defaultCode string) (string, string) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, se.description()
	}

	if errors.Is(err, stream.ErrUnsupported) {
		return unsupportedCode, err.Error()
	}

	return defaultCode, err.Error()
}

func (c *Conn) notifyStatus(ns *NetStream, code string) {
	if c.Handler != nil {
		c.Handler.OnNetStreamStatus(ns, code)
	}
}

func (c *Conn) replyStatus(ns *NetStream, transactionID float64, level string, code string, description string) error {
	err := c.writeStatus(ns, transactionID, level, code, description)
	if err != nil {
		return err
	}

	c.notifyStatus(ns, code)
	return nil
}

func (c *Conn) onStreamCommand(ns *NetStream, msg *message.Command) error {
	switch msg.Name {
	case "publish":
		return c.onPublish(ns, msg)

	case "play":
		return c.onPlay(ns, msg)

	case "pause":
		return c.onPause(ns, msg)

	case "seek":
		return c.onSeek(ns, msg)

	case "closeStream":
		wasPublishing := ns.Publishing()
		ns.stop()
		if wasPublishing {
			return c.replyStatus(ns, 0, codeLevelStatus, CodeUnpublishSuccess, "")
		}
		return nil

	case "deleteStream":
		id, ok := streamIDArgument(msg.Arguments)
		if !ok {
			id = ns.ID
		}
		c.deleteNetStream(id)
		return nil

	case "receiveAudio", "receiveVideo", "FCUnpublish", "releaseStream":
		return nil
	}

	c.Log(logger.Debug, "forwarding command: %s", msg.Name)
	if c.Handler != nil {
		c.Handler.OnCommand(ns, &msg.Command)
	}
	ns.Piped.OnCommand(&msg.Command)
	return nil
}

func nameArgument(args []interface{}) (string, bool) {
	if len(args) < 1 {
		return "", false
	}

	name, ok := args[0].(string)
	if !ok || name == "" {
		return "", false
	}

	return name, true
}

func (c *Conn) onPublish(ns *NetStream, msg *message.Command) error {
	name, ok := nameArgument(msg.Arguments)
	if !ok {
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, CodePublishBadName, "invalid stream name")
	}

	if ns.Publishing() || ns.Playing() {
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, CodePublishBadName, "stream is busy")
	}

	err := ns.Control.Publish(name)
	if err != nil {
		code, desc := statusOfError(err, CodePublishFailed, CodePublishBadName)
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, code, desc)
	}

	ns.setState(name, true, false)

	return c.replyStatus(ns, msg.TransactionID, codeLevelStatus, CodePublishStart, name+" is now published")
}

func (c *Conn) onPlay(ns *NetStream, msg *message.Command) error {
	name, ok := nameArgument(msg.Arguments)
	if !ok {
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, CodePlayFailed, "invalid stream name")
	}

	if ns.Publishing() || ns.Playing() {
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, CodePlayFailed, "stream is busy")
	}

	ns.Piped.Configure(c.WaitIntra, c.RewriteTimestamps)

	// units delivered while attaching are held until the status events are written.
	out := ns.attachOutput()

	err := ns.Control.Play(name)
	if err != nil {
		ns.detachOutput()
		code, desc := statusOfError(err, CodePlayFailed, CodePlayFailed)
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, code, desc)
	}

	ns.setState(name, false, true)

	err = c.Write(&message.UserControlStreamIsRecorded{StreamID: ns.ID})
	if err != nil {
		return err
	}

	err = c.Write(&message.UserControlStreamBegin{StreamID: ns.ID})
	if err != nil {
		return err
	}

	for _, st := range []struct {
		code string
		desc string
	}{
		{CodePlayReset, "play reset"},
		{CodePlayStart, "play start"},
		{CodeDataStart, "data start"},
		{CodePlayPublishNotify, "publish notify"},
	} {
		err = c.writeStatus(ns, msg.TransactionID, codeLevelStatus, st.code, st.desc)
		if err != nil {
			return err
		}
	}

	out.openOutput()

	c.notifyStatus(ns, CodePlayStart)
	return nil
}

func (c *Conn) onPause(ns *NetStream, msg *message.Command) error {
	if len(msg.Arguments) < 1 {
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, CodePauseFailed, "invalid arguments")
	}

	pause, ok := msg.Arguments[0].(bool)
	if !ok {
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, CodePauseFailed, "invalid arguments")
	}

	var position float64
	if len(msg.Arguments) >= 2 {
		position, _ = msg.Arguments[1].(float64)
	}

	err := ns.Control.Pause(pause, uint32(position))
	if err != nil {
		code, desc := statusOfError(err, CodePauseFailed, CodePauseFailed)
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, code, desc)
	}

	if pause {
		return c.replyStatus(ns, msg.TransactionID, codeLevelStatus, CodePauseNotify, "paused")
	}
	return c.replyStatus(ns, msg.TransactionID, codeLevelStatus, CodeUnpauseNotify, "unpaused")
}

func (c *Conn) onSeek(ns *NetStream, msg *message.Command) error {
	if len(msg.Arguments) < 1 {
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, CodeSeekFailed, "invalid arguments")
	}

	position, ok := msg.Arguments[0].(float64)
	if !ok || position < 0 {
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, CodeSeekFailed, "invalid arguments")
	}

	err := ns.Control.Seek(uint32(position))
	if err != nil {
		code, desc := statusOfError(err, CodeSeekFailed, CodeSeekFailed)
		return c.replyStatus(ns, msg.TransactionID, codeLevelError, code, desc)
	}

	return c.replyStatus(ns, msg.TransactionID, codeLevelStatus, CodeSeekNotify, "seeking")
}
