package message

import (
	"encoding/binary"
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/chunk"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/rawmessage"
)

// UserControlType is a user control event type.
type UserControlType uint16

// user control event types.
const (
	UserControlTypeStreamBegin      UserControlType = 0
	UserControlTypeStreamEOF        UserControlType = 1
	UserControlTypeStreamDry        UserControlType = 2
	UserControlTypeSetBufferLength  UserControlType = 3
	UserControlTypeStreamIsRecorded UserControlType = 4
	UserControlTypePingRequest      UserControlType = 6
	UserControlTypePingResponse     UserControlType = 7
)

// String implements fmt.Stringer.
func (t UserControlType) String() string {
	switch t {
	case UserControlTypeStreamBegin:
		return "StreamBegin"
	case UserControlTypeStreamEOF:
		return "StreamEOF"
	case UserControlTypeStreamDry:
		return "StreamDry"
	case UserControlTypeSetBufferLength:
		return "SetBufferLength"
	case UserControlTypeStreamIsRecorded:
		return "StreamIsRecorded"
	case UserControlTypePingRequest:
		return "PingRequest"
	case UserControlTypePingResponse:
		return "PingResponse"
	}
	return fmt.Sprintf("unknown (%d)", uint16(t))
}

// userControlSize resolves the size of a user control body
// from its event type.
func userControlSize(head []byte) int {
	if len(head) < 2 {
		return 0
	}

	if UserControlType(binary.BigEndian.Uint16(head)) == UserControlTypeSetBufferLength {
		return 10
	}
	return 6
}

func unmarshalUserControl(raw *rawmessage.Message) error {
	if raw.ChunkStreamID != ControlChunkStreamID {
		return fmt.Errorf("unexpected chunk stream ID")
	}

	if raw.MessageStreamID != 0 {
		return fmt.Errorf("unexpected message stream ID")
	}

	var rec chunk.SizedRecord
	rec.Init(userControlSize, 10)

	n := rec.Feed(raw.Body)
	if !rec.IsParsed() || n != len(raw.Body) {
		return fmt.Errorf("invalid body size")
	}

	return nil
}

func marshalUserControl(typ UserControlType, values ...uint32) *rawmessage.Message {
	buf := make([]byte, 2+4*len(values))
	binary.BigEndian.PutUint16(buf, uint16(typ))
	for i, v := range values {
		binary.BigEndian.PutUint32(buf[2+i*4:], v)
	}

	return &rawmessage.Message{
		ChunkStreamID: ControlChunkStreamID,
		Type:          uint8(TypeUserControl),
		Body:          buf,
	}
}

func allocateUserControl(raw *rawmessage.Message) (Message, error) {
	if len(raw.Body) < 2 {
		return nil, fmt.Errorf("not enough bytes")
	}

	typ := UserControlType(binary.BigEndian.Uint16(raw.Body))

	switch typ {
	case UserControlTypeStreamBegin:
		return &UserControlStreamBegin{}, nil

	case UserControlTypeStreamEOF:
		return &UserControlStreamEOF{}, nil

	case UserControlTypeStreamDry:
		return &UserControlStreamDry{}, nil

	case UserControlTypeSetBufferLength:
		return &UserControlSetBufferLength{}, nil

	case UserControlTypeStreamIsRecorded:
		return &UserControlStreamIsRecorded{}, nil

	case UserControlTypePingRequest:
		return &UserControlPingRequest{}, nil

	case UserControlTypePingResponse:
		return &UserControlPingResponse{}, nil

	default:
		return nil, fmt.Errorf("invalid user control type: %v", typ)
	}
}

// UserControlStreamBegin is a StreamBegin user control message.
type UserControlStreamBegin struct {
	StreamID uint32
}

func (m *UserControlStreamBegin) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalUserControl(raw)
	if err != nil {
		return err
	}

	m.StreamID = binary.BigEndian.Uint32(raw.Body[2:])
	return nil
}

func (m UserControlStreamBegin) marshal() (*rawmessage.Message, error) {
	return marshalUserControl(UserControlTypeStreamBegin, m.StreamID), nil
}

// UserControlStreamEOF is a StreamEOF user control message.
type UserControlStreamEOF struct {
	StreamID uint32
}

func (m *UserControlStreamEOF) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalUserControl(raw)
	if err != nil {
		return err
	}

	m.StreamID = binary.BigEndian.Uint32(raw.Body[2:])
	return nil
}

func (m UserControlStreamEOF) marshal() (*rawmessage.Message, error) {
	return marshalUserControl(UserControlTypeStreamEOF, m.StreamID), nil
}

// UserControlStreamDry is a StreamDry user control message.
type UserControlStreamDry struct {
	StreamID uint32
}

func (m *UserControlStreamDry) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalUserControl(raw)
	if err != nil {
		return err
	}

	m.StreamID = binary.BigEndian.Uint32(raw.Body[2:])
	return nil
}

func (m UserControlStreamDry) marshal() (*rawmessage.Message, error) {
	return marshalUserControl(UserControlTypeStreamDry, m.StreamID), nil
}

// UserControlSetBufferLength is a SetBufferLength user control message.
type UserControlSetBufferLength struct {
	StreamID     uint32
	BufferLength uint32
}

func (m *UserControlSetBufferLength) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalUserControl(raw)
	if err != nil {
		return err
	}

	m.StreamID = binary.BigEndian.Uint32(raw.Body[2:])
	m.BufferLength = binary.BigEndian.Uint32(raw.Body[6:])
	return nil
}

func (m UserControlSetBufferLength) marshal() (*rawmessage.Message, error) {
	return marshalUserControl(UserControlTypeSetBufferLength, m.StreamID, m.BufferLength), nil
}

// UserControlStreamIsRecorded is a StreamIsRecorded user control message.
type UserControlStreamIsRecorded struct {
	StreamID uint32
}

func (m *UserControlStreamIsRecorded) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalUserControl(raw)
	if err != nil {
		return err
	}

	m.StreamID = binary.BigEndian.Uint32(raw.Body[2:])
	return nil
}

func (m UserControlStreamIsRecorded) marshal() (*rawmessage.Message, error) {
	return marshalUserControl(UserControlTypeStreamIsRecorded, m.StreamID), nil
}

// UserControlPingRequest is a PingRequest user control message.
type UserControlPingRequest struct {
	ServerTime uint32
}

func (m *UserControlPingRequest) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalUserControl(raw)
	if err != nil {
		return err
	}

	m.ServerTime = binary.BigEndian.Uint32(raw.Body[2:])
	return nil
}

func (m UserControlPingRequest) marshal() (*rawmessage.Message, error) {
	return marshalUserControl(UserControlTypePingRequest, m.ServerTime), nil
}

// UserControlPingResponse is a PingResponse user control message.
type UserControlPingResponse struct {
	ServerTime uint32
}

func (m *UserControlPingResponse) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalUserControl(raw)
	if err != nil {
		return err
	}

	m.ServerTime = binary.BigEndian.Uint32(raw.Body[2:])
	return nil
}

func (m UserControlPingResponse) marshal() (*rawmessage.Message, error) {
	return marshalUserControl(UserControlTypePingResponse, m.ServerTime), nil
}
