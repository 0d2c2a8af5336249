// Package message contains the RTMP messages.
package message

import (
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/rawmessage"
)

// chunk stream IDs used by outgoing messages.
const (
	ControlChunkStreamID       = 2
	CommandChunkStreamID       = 3
	AudioChunkStreamID         = 4
	StreamCommandChunkStreamID = 5
	VideoChunkStreamID         = 6
)

// Type is a message type.
type Type uint8

// message types.
const (
	TypeSetChunkSize     Type = 1
	TypeAbortMessage     Type = 2
	TypeAcknowledge      Type = 3
	TypeUserControl      Type = 4
	TypeSetWindowAckSize Type = 5
	TypeSetPeerBandwidth Type = 6
	TypeAudio            Type = 8
	TypeVideo            Type = 9
	TypeDataAMF3         Type = 15
	TypeSharedObjectAMF3 Type = 16
	TypeCommandAMF3      Type = 17
	TypeDataAMF0         Type = 18
	TypeSharedObjectAMF0 Type = 19
	TypeCommandAMF0      Type = 20
	TypeAggregate        Type = 22
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeSetChunkSize:
		return "SetChunkSize"
	case TypeAbortMessage:
		return "AbortMessage"
	case TypeAcknowledge:
		return "Acknowledge"
	case TypeUserControl:
		return "UserControl"
	case TypeSetWindowAckSize:
		return "SetWindowAckSize"
	case TypeSetPeerBandwidth:
		return "SetPeerBandwidth"
	case TypeAudio:
		return "Audio"
	case TypeVideo:
		return "Video"
	case TypeDataAMF3:
		return "DataAMF3"
	case TypeSharedObjectAMF3:
		return "SharedObjectAMF3"
	case TypeCommandAMF3:
		return "CommandAMF3"
	case TypeDataAMF0:
		return "DataAMF0"
	case TypeSharedObjectAMF0:
		return "SharedObjectAMF0"
	case TypeCommandAMF0:
		return "CommandAMF0"
	case TypeAggregate:
		return "Aggregate"
	}
	return fmt.Sprintf("unknown (%d)", uint8(t))
}

// IsControl returns whether the type is a protocol control type.
func (t Type) IsControl() bool {
	return t >= TypeSetChunkSize && t <= TypeSetPeerBandwidth
}

// Message is a message.
type Message interface {
	unmarshal(*rawmessage.Message) error
	marshal() (*rawmessage.Message, error)
}

func allocateMessage(raw *rawmessage.Message) (Message, error) {
	switch Type(raw.Type) {
	case TypeSetChunkSize:
		return &SetChunkSize{}, nil

	case TypeAbortMessage:
		return &Abort{}, nil

	case TypeAcknowledge:
		return &Acknowledge{}, nil

	case TypeUserControl:
		return allocateUserControl(raw)

	case TypeSetWindowAckSize:
		return &SetWindowAckSize{}, nil

	case TypeSetPeerBandwidth:
		return &SetPeerBandwidth{}, nil

	case TypeAudio:
		return &Audio{}, nil

	case TypeVideo:
		return &Video{}, nil

	case TypeDataAMF0, TypeDataAMF3:
		return &Data{}, nil

	case TypeSharedObjectAMF0, TypeSharedObjectAMF3:
		return &SharedObject{}, nil

	case TypeCommandAMF0, TypeCommandAMF3:
		return &Command{}, nil

	case TypeAggregate:
		return &Aggregate{}, nil

	default:
		return nil, fmt.Errorf("invalid message type: %d", raw.Type)
	}
}

// Unmarshal decodes a raw message into a Message.
// The kind of the returned message depends on the raw message type only.
func Unmarshal(raw *rawmessage.Message) (Message, error) {
	msg, err := allocateMessage(raw)
	if err != nil {
		return nil, err
	}

	err = msg.unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %v message: %w", Type(raw.Type), err)
	}

	return msg, nil
}

// Marshal encodes a Message into a raw message.
func Marshal(msg Message) (*rawmessage.Message, error) {
	return msg.marshal()
}
