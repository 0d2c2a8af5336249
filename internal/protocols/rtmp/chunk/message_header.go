package chunk

import (
	"encoding/binary"
	"fmt"
)

// ExtendedTimestampMarker is the 24-bit timestamp value that announces an extended timestamp.
const ExtendedTimestampMarker = 0xFFFFFF

// header sizes.
const (
	Header0Size           = 11
	Header1Size           = 7
	Header2Size           = 3
	ExtendedTimestampSize = 4
)

// HeaderSize returns the size of the message header of the given format.
func HeaderSize(typ uint8) int {
	switch typ {
	case 0:
		return Header0Size
	case 1:
		return Header1Size
	case 2:
		return Header2Size
	default:
		return 0
	}
}

func uint24(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}

func putUint24(buf []byte, v uint32) {
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

func timestampField(v uint32) uint32 {
	if v >= ExtendedTimestampMarker {
		return ExtendedTimestampMarker
	}
	return v
}

// Header0 is the message header of a type 0 chunk.
// Timestamp is absolute.
type Header0 struct {
	Timestamp       uint32
	BodyLen         uint32
	Type            uint8
	MessageStreamID uint32
}

// Unmarshal decodes the header. Timestamp receives the raw 24-bit field.
func (h *Header0) Unmarshal(buf []byte) error {
	if len(buf) != Header0Size {
		return fmt.Errorf("invalid header size")
	}

	h.Timestamp = uint24(buf[0:])
	h.BodyLen = uint24(buf[3:])
	h.Type = buf[6]
	// the message stream ID is little endian
	h.MessageStreamID = binary.LittleEndian.Uint32(buf[7:])
	return nil
}

// MarshalTo encodes the header into buf.
func (h Header0) MarshalTo(buf []byte) (int, error) {
	if len(buf) < Header0Size {
		return 0, ErrBufferTooSmall
	}

	putUint24(buf[0:], timestampField(h.Timestamp))
	putUint24(buf[3:], h.BodyLen)
	buf[6] = h.Type
	binary.LittleEndian.PutUint32(buf[7:], h.MessageStreamID)
	return Header0Size, nil
}

// HasExtendedTimestamp returns whether the timestamp needs an extended field.
func (h Header0) HasExtendedTimestamp() bool {
	return h.Timestamp >= ExtendedTimestampMarker
}

// String implements fmt.Stringer.
func (h Header0) String() string {
	return fmt.Sprintf("ts=%d len=%d type=%d msid=%d", h.Timestamp, h.BodyLen, h.Type, h.MessageStreamID)
}

// Header1 is the message header of a type 1 chunk.
type Header1 struct {
	TimestampDelta uint32
	BodyLen        uint32
	Type           uint8
}

// Unmarshal decodes the header. TimestampDelta receives the raw 24-bit field.
func (h *Header1) Unmarshal(buf []byte) error {
	if len(buf) != Header1Size {
		return fmt.Errorf("invalid header size")
	}

	h.TimestampDelta = uint24(buf[0:])
	h.BodyLen = uint24(buf[3:])
	h.Type = buf[6]
	return nil
}

// MarshalTo encodes the header into buf.
func (h Header1) MarshalTo(buf []byte) (int, error) {
	if len(buf) < Header1Size {
		return 0, ErrBufferTooSmall
	}

	putUint24(buf[0:], timestampField(h.TimestampDelta))
	putUint24(buf[3:], h.BodyLen)
	buf[6] = h.Type
	return Header1Size, nil
}

// HasExtendedTimestamp returns whether the delta needs an extended field.
func (h Header1) HasExtendedTimestamp() bool {
	return h.TimestampDelta >= ExtendedTimestampMarker
}

// String implements fmt.Stringer.
func (h Header1) String() string {
	return fmt.Sprintf("delta=%d len=%d type=%d", h.TimestampDelta, h.BodyLen, h.Type)
}

// Header2 is the message header of a type 2 chunk.
type Header2 struct {
	TimestampDelta uint32
}

// Unmarshal decodes the header. TimestampDelta receives the raw 24-bit field.
func (h *Header2) Unmarshal(buf []byte) error {
	if len(buf) != Header2Size {
		return fmt.Errorf("invalid header size")
	}

	h.TimestampDelta = uint24(buf)
	return nil
}

// MarshalTo encodes the header into buf.
func (h Header2) MarshalTo(buf []byte) (int, error) {
	if len(buf) < Header2Size {
		return 0, ErrBufferTooSmall
	}

	putUint24(buf, timestampField(h.TimestampDelta))
	return Header2Size, nil
}

// HasExtendedTimestamp returns whether the delta needs an extended field.
func (h Header2) HasExtendedTimestamp() bool {
	return h.TimestampDelta >= ExtendedTimestampMarker
}

// String implements fmt.Stringer.
func (h Header2) String() string {
	return fmt.Sprintf("delta=%d", h.TimestampDelta)
}

// UnmarshalExtendedTimestamp decodes an extended timestamp.
func UnmarshalExtendedTimestamp(buf []byte) (uint32, error) {
	if len(buf) != ExtendedTimestampSize {
		return 0, fmt.Errorf("invalid extended timestamp size")
	}
	return binary.BigEndian.Uint32(buf), nil
}

// MarshalExtendedTimestamp encodes an extended timestamp into buf.
func MarshalExtendedTimestamp(buf []byte, v uint32) (int, error) {
	if len(buf) < ExtendedTimestampSize {
		return 0, ErrBufferTooSmall
	}
	binary.BigEndian.PutUint32(buf, v)
	return ExtendedTimestampSize, nil
}
