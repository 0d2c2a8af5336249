// Package rawmessage contains the RTMP chunk stream demuxer and muxer.
package rawmessage

import (
	"fmt"
)

// Message is a raw message.
type Message struct {
	ChunkStreamID   uint32
	Timestamp       uint32
	Type            uint8
	MessageStreamID uint32
	Body            []byte
}

// String implements fmt.Stringer.
func (m *Message) String() string {
	return fmt.Sprintf("csid=%d ts=%d type=%d msid=%d len=%d",
		m.ChunkStreamID, m.Timestamp, m.Type, m.MessageStreamID, len(m.Body))
}
