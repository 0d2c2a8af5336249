// Package handshake contains the RTMP handshake.
package handshake

import (
	"encoding/binary"
	"fmt"
)

// packet sizes.
const (
	C0S0Size = 1
	C1S1Size = 1536
	C2S2Size = 1536
)

// Version is the only supported protocol version.
const Version = 3

// C0S0 is a C0 or S0 packet.
type C0S0 struct {
	Version byte
}

// Unmarshal decodes the packet.
func (c *C0S0) Unmarshal(buf []byte) error {
	if len(buf) != C0S0Size {
		return fmt.Errorf("invalid C0/S0 size")
	}

	c.Version = buf[0]

	if c.Version != Version {
		return fmt.Errorf("unsupported RTMP version (%d)", c.Version)
	}

	return nil
}

// Marshal encodes the packet.
func (c C0S0) Marshal() []byte {
	return []byte{c.Version}
}

// C1S1 is a C1 or S1 packet.
type C1S1 struct {
	Time uint32
	// zero in the plain handshake, a version number in the digest handshake
	Marker uint32
	Random []byte
}

// Unmarshal decodes the packet.
func (c *C1S1) Unmarshal(buf []byte) error {
	if len(buf) != C1S1Size {
		return fmt.Errorf("invalid C1/S1 size")
	}

	c.Time = binary.BigEndian.Uint32(buf[0:])
	c.Marker = binary.BigEndian.Uint32(buf[4:])
	c.Random = buf[8:]
	return nil
}

// Marshal encodes the packet.
func (c C1S1) Marshal() []byte {
	buf := make([]byte, C1S1Size)
	binary.BigEndian.PutUint32(buf[0:], c.Time)
	binary.BigEndian.PutUint32(buf[4:], c.Marker)
	copy(buf[8:], c.Random)
	return buf
}

// C2S2 is a C2 or S2 packet.
type C2S2 struct {
	// time of the peer C1/S1
	Time uint32
	// time the peer C1/S1 was received
	Time2  uint32
	Random []byte
}

// Unmarshal decodes the packet.
func (c *C2S2) Unmarshal(buf []byte) error {
	if len(buf) != C2S2Size {
		return fmt.Errorf("invalid C2/S2 size")
	}

	c.Time = binary.BigEndian.Uint32(buf[0:])
	c.Time2 = binary.BigEndian.Uint32(buf[4:])
	c.Random = buf[8:]
	return nil
}

// Marshal encodes the packet.
func (c C2S2) Marshal() []byte {
	buf := make([]byte, C2S2Size)
	binary.BigEndian.PutUint32(buf[0:], c.Time)
	binary.BigEndian.PutUint32(buf[4:], c.Time2)
	copy(buf[8:], c.Random)
	return buf
}
