package rawmessage

import (
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/chunk"
)

const maxChunkHeaderSize = 3 + chunk.Header0Size + chunk.ExtendedTimestampSize

type outputStream struct {
	id      uint32
	pending []*Message
	sent    uint32
}

// Muxer splits messages into chunks.
// Each chunk stream has its own queue; queues are served in round robin,
// one chunk at a time. The first chunk of every message has a type 0 header,
// the following ones have a type 3 header.
type Muxer struct {
	chunkSize uint32
	streams   map[uint32]*outputStream
	order     []*outputStream
	next      int
}

// NewMuxer allocates a Muxer.
func NewMuxer() *Muxer {
	return &Muxer{
		chunkSize: DefaultChunkSize,
		streams:   make(map[uint32]*outputStream),
	}
}

// ChunkSize returns the maximum size of outgoing chunks.
func (m *Muxer) ChunkSize() uint32 {
	return m.chunkSize
}

// SetChunkSize sets the maximum size of outgoing chunks.
// It applies to chunks generated after the call.
func (m *Muxer) SetChunkSize(v uint32) error {
	if v < 1 || v > maxChunkSize {
		return fmt.Errorf("invalid chunk size: %d", v)
	}

	m.chunkSize = v
	return nil
}

// Push enqueues a message.
func (m *Muxer) Push(msg *Message) error {
	if msg.ChunkStreamID < chunk.MinChunkStreamID || msg.ChunkStreamID > chunk.MaxChunkStreamID {
		return fmt.Errorf("invalid chunk stream ID: %d", msg.ChunkStreamID)
	}

	if len(msg.Body) > 0xFFFFFF {
		return fmt.Errorf("body size (%d) exceeds maximum (%d)", len(msg.Body), 0xFFFFFF)
	}

	st, ok := m.streams[msg.ChunkStreamID]
	if !ok {
		st = &outputStream{id: msg.ChunkStreamID}
		m.streams[msg.ChunkStreamID] = st
		m.order = append(m.order, st)
	}

	st.pending = append(st.pending, msg)
	return nil
}

// Pending returns whether there are chunks to write.
func (m *Muxer) Pending() bool {
	for _, st := range m.order {
		if len(st.pending) != 0 {
			return true
		}
	}
	return false
}

// NextChunk appends the next chunk to buf.
// It returns false when there are no pending messages.
func (m *Muxer) NextChunk(buf []byte) ([]byte, bool) {
	for range m.order {
		st := m.order[m.next]
		m.next = (m.next + 1) % len(m.order)

		if len(st.pending) != 0 {
			return m.writeChunk(buf, st), true
		}
	}

	return buf, false
}

// Drain appends all pending chunks to buf.
func (m *Muxer) Drain(buf []byte) []byte {
	for {
		var ok bool
		buf, ok = m.NextChunk(buf)
		if !ok {
			return buf
		}
	}
}

func (m *Muxer) writeChunk(buf []byte, st *outputStream) []byte {
	msg := st.pending[0]
	bodyLen := uint32(len(msg.Body))

	le := bodyLen - st.sent
	if le > m.chunkSize {
		le = m.chunkSize
	}

	var hdr [maxChunkHeaderSize]byte

	bh := chunk.BasicHeader{ChunkStreamID: st.id}
	if st.sent != 0 {
		bh.Fmt = 3
	}

	// chunk stream ID has been validated by Push
	n, _ := bh.MarshalTo(hdr[:])

	if st.sent == 0 {
		h0 := chunk.Header0{
			Timestamp:       msg.Timestamp,
			BodyLen:         bodyLen,
			Type:            msg.Type,
			MessageStreamID: msg.MessageStreamID,
		}
		n2, _ := h0.MarshalTo(hdr[n:])
		n += n2
	}

	if msg.Timestamp >= chunk.ExtendedTimestampMarker {
		n2, _ := chunk.MarshalExtendedTimestamp(hdr[n:], msg.Timestamp)
		n += n2
	}

	buf = append(buf, hdr[:n]...)
	buf = append(buf, msg.Body[st.sent:st.sent+le]...)
	st.sent += le

	if st.sent == bodyLen {
		st.pending[0] = nil
		st.pending = st.pending[1:]
		st.sent = 0
	}

	return buf
}
