package message //nolint:dupl

import (
	"encoding/binary"
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/rawmessage"
)

func unmarshalControl(raw *rawmessage.Message, size int) error {
	if raw.ChunkStreamID != ControlChunkStreamID {
		return fmt.Errorf("unexpected chunk stream ID")
	}

	if raw.MessageStreamID != 0 {
		return fmt.Errorf("unexpected message stream ID")
	}

	if len(raw.Body) != size {
		return fmt.Errorf("invalid body size")
	}

	return nil
}

func marshalUint32(typ Type, v uint32) *rawmessage.Message {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)

	return &rawmessage.Message{
		ChunkStreamID: ControlChunkStreamID,
		Type:          uint8(typ),
		Body:          buf,
	}
}

// SetChunkSize is a set chunk size message.
type SetChunkSize struct {
	Value uint32
}

func (m *SetChunkSize) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalControl(raw, 4)
	if err != nil {
		return err
	}

	// first bit is reserved
	m.Value = binary.BigEndian.Uint32(raw.Body) & 0x7FFFFFFF
	return nil
}

func (m SetChunkSize) marshal() (*rawmessage.Message, error) {
	return marshalUint32(TypeSetChunkSize, m.Value), nil
}

// Abort is an abort message.
type Abort struct {
	ChunkStreamID uint32
}

func (m *Abort) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalControl(raw, 4)
	if err != nil {
		return err
	}

	m.ChunkStreamID = binary.BigEndian.Uint32(raw.Body)
	return nil
}

func (m Abort) marshal() (*rawmessage.Message, error) {
	return marshalUint32(TypeAbortMessage, m.ChunkStreamID), nil
}

// Acknowledge is an acknowledgement message.
type Acknowledge struct {
	Value uint32
}

func (m *Acknowledge) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalControl(raw, 4)
	if err != nil {
		return err
	}

	m.Value = binary.BigEndian.Uint32(raw.Body)
	return nil
}

func (m Acknowledge) marshal() (*rawmessage.Message, error) {
	return marshalUint32(TypeAcknowledge, m.Value), nil
}

// SetWindowAckSize is a set window acknowledgement size message.
type SetWindowAckSize struct {
	Value uint32
}

func (m *SetWindowAckSize) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalControl(raw, 4)
	if err != nil {
		return err
	}

	m.Value = binary.BigEndian.Uint32(raw.Body)
	return nil
}

func (m SetWindowAckSize) marshal() (*rawmessage.Message, error) {
	return marshalUint32(TypeSetWindowAckSize, m.Value), nil
}

// LimitType is the limit type of a SetPeerBandwidth message.
type LimitType uint8

// limit types.
const (
	LimitTypeHard    LimitType = 0
	LimitTypeSoft    LimitType = 1
	LimitTypeDynamic LimitType = 2
)

// SetPeerBandwidth is a set peer bandwidth message.
type SetPeerBandwidth struct {
	Value uint32
	Type  LimitType
}

func (m *SetPeerBandwidth) unmarshal(raw *rawmessage.Message) error {
	err := unmarshalControl(raw, 5)
	if err != nil {
		return err
	}

	m.Value = binary.BigEndian.Uint32(raw.Body)
	m.Type = LimitType(raw.Body[4])

	if m.Type > LimitTypeDynamic {
		return fmt.Errorf("invalid limit type: %d", m.Type)
	}

	return nil
}

func (m SetPeerBandwidth) marshal() (*rawmessage.Message, error) {
	buf := make([]byte, 5)
	binary.BigEndian.PutUint32(buf, m.Value)
	buf[4] = byte(m.Type)

	return &rawmessage.Message{
		ChunkStreamID: ControlChunkStreamID,
		Type:          uint8(TypeSetPeerBandwidth),
		Body:          buf,
	}, nil
}
