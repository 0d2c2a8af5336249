package handshake

import (
	"crypto/rand"
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/chunk"
)

const digestMarker = 0x0d0e0a0d

// State is the state of a handshake.
type State int

// states.
const (
	StateC0Wait State = iota
	StateC1Wait
	StateC2Wait
	StateS0Wait
	StateS1Wait
	StateS2Wait
	StateDone
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateC0Wait:
		return "handshakeC0Wait"
	case StateC1Wait:
		return "handshakeC1Wait"
	case StateC2Wait:
		return "handshakeC2Wait"
	case StateS0Wait:
		return "handshakeS0Wait"
	case StateS1Wait:
		return "handshakeS1Wait"
	case StateS2Wait:
		return "handshakeS2Wait"
	case StateDone:
		return "done"
	}
	return "unknown"
}

func randomBytes(n int) []byte {
	buf := make([]byte, n)
	rand.Read(buf) //nolint:errcheck
	return buf
}

func recordSize(s State) int {
	switch s {
	case StateC0Wait, StateS0Wait:
		return C0S0Size
	case StateC1Wait, StateS1Wait:
		return C1S1Size
	default:
		return C2S2Size
	}
}

// Handshake is a push-based RTMP handshake, either on the server or on the client side.
// Incoming bytes are passed to Feed, which returns the bytes to be sent to the peer.
type Handshake struct {
	// engine clock in milliseconds
	Now func() uint32

	state State
	rec   chunk.Record

	ownS1C1  []byte
	s2Key    []byte
	peerTime uint32
}

// NewServer allocates a server-side Handshake.
func NewServer(now func() uint32) *Handshake {
	h := &Handshake{Now: now, state: StateC0Wait}
	h.rec.Init(recordSize(h.state))
	return h
}

// NewClient allocates a client-side Handshake.
// The returned bytes (C0 and C1) must be sent to the server.
func NewClient(now func() uint32) (*Handshake, []byte) {
	h := &Handshake{Now: now, state: StateS0Wait}
	h.rec.Init(recordSize(h.state))

	c1 := C1S1{
		Time:   now(),
		Marker: digestMarker,
		Random: randomBytes(C1S1Size - 8),
	}
	h.ownS1C1 = c1.Marshal()
	sign(h.ownS1C1, clientPartialKey)

	gap := digestPos(h.ownS1C1, 8)
	h.s2Key = makeDigest(serverFullKey, h.ownS1C1[gap:gap+digestLength], -1)

	out := append(C0S0{Version: Version}.Marshal(), h.ownS1C1...)
	return h, out
}

// State returns the state.
func (h *Handshake) State() State {
	return h.state
}

// Done returns whether the handshake is complete.
func (h *Handshake) Done() bool {
	return h.state == StateDone
}

// PeerTime returns the time written by the peer in its C1 or S1 packet.
func (h *Handshake) PeerTime() uint32 {
	return h.peerTime
}

// Feed consumes bytes and returns the number of bytes consumed
// and the bytes to send to the peer.
// Feed stops consuming when the handshake is done.
func (h *Handshake) Feed(p []byte) (int, []byte, error) {
	n := 0
	var out []byte

	for n < len(p) && h.state != StateDone {
		n += h.rec.Feed(p[n:])
		if !h.rec.IsParsed() {
			break
		}

		res, err := h.onRecord(h.rec.Bytes())
		if err != nil {
			return n, out, err
		}
		out = append(out, res...)

		if h.state != StateDone {
			h.rec.Init(recordSize(h.state))
		}
	}

	return n, out, nil
}

func (h *Handshake) onRecord(buf []byte) ([]byte, error) {
	switch h.state {
	case StateC0Wait:
		var c0 C0S0
		err := c0.Unmarshal(buf)
		if err != nil {
			return nil, err
		}

		// S1 is sent before knowing whether C1 is signed; a signed S1 is
		// accepted by plain clients too.
		s1 := C1S1{
			Time:   h.Now(),
			Marker: digestMarker,
			Random: randomBytes(C1S1Size - 8),
		}
		h.ownS1C1 = s1.Marshal()
		sign(h.ownS1C1, serverPartialKey)

		h.state = StateC1Wait
		return append(C0S0{Version: Version}.Marshal(), h.ownS1C1...), nil

	case StateC1Wait:
		var c1 C1S1
		err := c1.Unmarshal(buf)
		if err != nil {
			return nil, err
		}

		h.peerTime = c1.Time

		s2 := C2S2{
			Time:   c1.Time,
			Time2:  h.Now(),
			Random: c1.Random,
		}

		if c1.Marker != 0 {
			if key, ok := parseDigest(buf, clientPartialKey, serverFullKey); ok {
				s2.Random = randomBytes(C2S2Size - 8)
				enc := s2.Marshal()
				signTail(enc, key)
				h.state = StateC2Wait
				return enc, nil
			}
		}

		h.state = StateC2Wait
		return s2.Marshal(), nil

	case StateC2Wait:
		var c2 C2S2
		err := c2.Unmarshal(buf)
		if err != nil {
			return nil, err
		}

		h.state = StateDone
		return nil, nil

	case StateS0Wait:
		var s0 C0S0
		err := s0.Unmarshal(buf)
		if err != nil {
			return nil, err
		}

		h.state = StateS1Wait
		return nil, nil

	case StateS1Wait:
		var s1 C1S1
		err := s1.Unmarshal(buf)
		if err != nil {
			return nil, err
		}

		h.peerTime = s1.Time

		c2 := C2S2{
			Time:   s1.Time,
			Time2:  h.Now(),
			Random: s1.Random,
		}

		if s1.Marker != 0 {
			if key, ok := parseDigest(buf, serverPartialKey, clientFullKey); ok {
				c2.Random = randomBytes(C2S2Size - 8)
				enc := c2.Marshal()
				signTail(enc, key)
				h.state = StateS2Wait
				return enc, nil
			}
		}

		// a plain S1 is followed by a plain S2
		h.s2Key = nil
		h.state = StateS2Wait
		return c2.Marshal(), nil

	case StateS2Wait:
		var s2 C2S2
		err := s2.Unmarshal(buf)
		if err != nil {
			return nil, err
		}

		if h.s2Key != nil && !validateTail(buf, h.s2Key) {
			return nil, fmt.Errorf("unable to validate S2 digest")
		}

		h.state = StateDone
		return nil, nil
	}

	return nil, fmt.Errorf("unexpected state: %v", h.state)
}
