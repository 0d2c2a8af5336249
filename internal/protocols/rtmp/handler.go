package rtmp

import (
	"github.com/bluenviron/rtmpcast/internal/media"
)

// ServerHandler receives the events of a server-side Conn.
type ServerHandler interface {
	// called when the peer sends a connect command.
	// The request must be accepted or rejected, even from another routine.
	OnConnect(req *ConnectRequest)

	// called when the peer creates a NetStream.
	// The handler is expected to set the NetStream Control.
	OnNetStreamCreated(ns *NetStream)

	// called after a status event has been sent for a NetStream.
	OnNetStreamStatus(ns *NetStream, code string)

	// called when a NetStream is deleted or the connection is closed.
	OnNetStreamDestroyed(ns *NetStream)

	// called when an unrecognized command is received.
	// ns is nil for connection-level commands.
	OnCommand(ns *NetStream, cmd *media.Command)
}

// ClientHandler receives the events of a client-side Conn.
type ClientHandler interface {
	// called when the server accepts the connect command.
	OnConnected()

	// called when the server replies to a createStream command.
	OnNetStreamCreated(ns *NetStream)

	// called when a status event or a reply to a command is received.
	// ns is nil for connection-level replies.
	OnCommandResponse(ns *NetStream, cmd *media.Command)

	// called when the connection is closed.
	OnDisconnected(err error)
}
