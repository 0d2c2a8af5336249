package rtmp

import (
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/message"
)

func (c *Conn) newTransaction(name string) float64 {
	c.streamsMutex.Lock()
	defer c.streamsMutex.Unlock()

	id := c.nextTransactionID
	c.nextTransactionID++
	c.transactions[id] = name
	return id
}

func (c *Conn) popTransaction(id float64) (string, bool) {
	c.streamsMutex.Lock()
	defer c.streamsMutex.Unlock()

	name, ok := c.transactions[id]
	delete(c.transactions, id)
	return name, ok
}

func (c *Conn) sendConnect() error {
	return c.writeCommand(message.CommandChunkStreamID, 0, media.Command{
		Name:          "connect",
		TransactionID: c.newTransaction("connect"),
		Object: amf0.Object{
			{Key: "app", Value: c.App},
			{Key: "flashVer", Value: "LNX 9,0,124,2"},
			{Key: "tcUrl", Value: c.TCURL},
			{Key: "fpad", Value: false},
			{Key: "capabilities", Value: float64(15)},
			{Key: "audioCodecs", Value: float64(4071)},
			{Key: "videoCodecs", Value: float64(252)},
			{Key: "videoFunction", Value: float64(1)},
		},
	})
}

// CreateStream asks the server to create a NetStream.
// ClientHandler.OnNetStreamCreated is called when the server replies.
func (c *Conn) CreateStream() error {
	if c.Role != RoleClient {
		return fmt.Errorf("not a client")
	}

	if !c.connected.Load() {
		return fmt.Errorf("not connected")
	}

	return c.writeCommand(message.CommandChunkStreamID, 0, media.Command{
		Name:          "createStream",
		TransactionID: c.newTransaction("createStream"),
	})
}

// SendPublish asks the server to publish the stream.
// Once the server replies with NetStream.Publish.Start, units received
// by the NetStream are written to the server.
func (ns *NetStream) SendPublish(name string) error {
	return ns.sendRequest("publish", name, "live")
}

// SendPlay asks the server to play the stream.
// Units sent by the server are forwarded to the listeners of the NetStream.
func (ns *NetStream) SendPlay(name string) error {
	return ns.sendRequest("play", name)
}

func (ns *NetStream) sendRequest(cmd string, name string, extra ...interface{}) error {
	if ns.conn.Role != RoleClient {
		return fmt.Errorf("not a client")
	}

	ns.mutex.Lock()
	ns.requested = name
	ns.mutex.Unlock()

	args := append([]interface{}{name}, extra...)

	return ns.conn.writeCommand(message.StreamCommandChunkStreamID, ns.ID, media.Command{
		Name:      cmd,
		Arguments: args,
	})
}

// SendCloseStream stops publishing or playing.
func (ns *NetStream) SendCloseStream() error {
	if ns.conn.Role != RoleClient {
		return fmt.Errorf("not a client")
	}

	ns.detachOutput()
	ns.Piped.Reset()
	ns.setState("", false, false)

	return ns.conn.writeCommand(message.StreamCommandChunkStreamID, ns.ID, media.Command{
		Name: "closeStream",
	})
}

func statusDescription(args []interface{}) string {
	if len(args) < 1 {
		return ""
	}

	o, ok := amf0.AsObject(args[0])
	if !ok {
		return ""
	}

	desc, _ := o.GetString("description")
	return desc
}

func (c *Conn) onClientCommand(msg *message.Command) error {
	switch msg.Name {
	case "_result", "_error":
		name, ok := c.popTransaction(msg.TransactionID)
		if !ok {
			break
		}

		switch name {
		case "connect":
			if msg.Name == "_error" {
				return fmt.Errorf("connect rejected: %s", statusDescription(msg.Arguments))
			}
			return c.onConnected()

		case "createStream":
			if msg.Name == "_error" {
				break
			}

			if len(msg.Arguments) < 1 {
				return fmt.Errorf("invalid createStream response")
			}

			id, ok := msg.Arguments[0].(float64)
			if !ok || id < 1 {
				return fmt.Errorf("invalid createStream response")
			}

			ns := c.addNetStream(uint32(id))
			c.ClientHandler.OnNetStreamCreated(ns)
			return nil
		}

	case "onStatus":
		ns := c.netStream(msg.MessageStreamID)
		if ns != nil {
			code, _ := StatusCode(msg.Arguments)
			ns.onStatus(code)
		}

		c.ClientHandler.OnCommandResponse(ns, &msg.Command)
		return nil
	}

	var ns *NetStream
	if msg.MessageStreamID != 0 {
		ns = c.netStream(msg.MessageStreamID)
	}

	c.ClientHandler.OnCommandResponse(ns, &msg.Command)
	return nil
}

func (c *Conn) onConnected() error {
	err := c.Write(&message.SetWindowAckSize{
		Value: c.WindowAckSize,
	})
	if err != nil {
		return err
	}

	err = c.setOutChunkSize(c.ChunkSize)
	if err != nil {
		return err
	}

	c.connected.Store(true)
	c.ClientHandler.OnConnected()
	return nil
}

func (ns *NetStream) onStatus(code string) {
	ns.mutex.Lock()
	name := ns.requested
	ns.mutex.Unlock()

	switch code {
	case CodePublishStart:
		ns.setState(name, true, false)
		out := ns.attachOutput()
		out.openOutput()

	case CodePlayStart:
		ns.setState(name, false, true)

	case CodePlayStop, CodeUnpublishSuccess, CodePlayUnpublishNotify:
		ns.detachOutput()
		ns.setState("", false, false)
	}
}
