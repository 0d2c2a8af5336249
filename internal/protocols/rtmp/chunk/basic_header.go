package chunk

import (
	"fmt"
)

// chunk stream ID limits.
const (
	MinChunkStreamID = 2
	MaxChunkStreamID = 65599
)

func basicHeaderSize(head []byte) int {
	switch head[0] & 0x3F {
	case 0:
		return 2
	case 1:
		return 3
	default:
		return 1
	}
}

// BasicHeader is a chunk basic header.
type BasicHeader struct {
	Fmt           uint8
	ChunkStreamID uint32

	rec SizedRecord
}

// Init initializes the header for incremental parsing.
func (h *BasicHeader) Init() {
	h.rec.Init(basicHeaderSize, 3)
}

// Reset prepares the header for parsing the next chunk.
func (h *BasicHeader) Reset() {
	h.rec.Reset()
}

// State returns the parsing state.
func (h *BasicHeader) State() SizeState {
	return h.rec.State()
}

// IsParsed returns whether the header is complete.
func (h *BasicHeader) IsParsed() bool {
	return h.rec.IsParsed()
}

// Feed consumes bytes from p and returns the number of bytes consumed.
func (h *BasicHeader) Feed(p []byte) int {
	n := h.rec.Feed(p)

	if h.rec.IsParsed() {
		buf := h.rec.Bytes()
		h.Fmt = buf[0] >> 6

		switch len(buf) {
		case 1:
			h.ChunkStreamID = uint32(buf[0] & 0x3F)
		case 2:
			h.ChunkStreamID = uint32(buf[1]) + 64
		default:
			h.ChunkStreamID = (uint32(buf[1]) | uint32(buf[2])<<8) + 64
		}
	}

	return n
}

// Size returns the encoded size of the header.
func (h BasicHeader) Size() int {
	switch {
	case h.ChunkStreamID < 64:
		return 1
	case h.ChunkStreamID < 320:
		return 2
	default:
		return 3
	}
}

// MarshalTo encodes the header into buf.
func (h BasicHeader) MarshalTo(buf []byte) (int, error) {
	if h.ChunkStreamID < MinChunkStreamID || h.ChunkStreamID > MaxChunkStreamID {
		return 0, fmt.Errorf("invalid chunk stream ID: %d", h.ChunkStreamID)
	}

	if h.Fmt > 3 {
		return 0, fmt.Errorf("invalid chunk format: %d", h.Fmt)
	}

	size := h.Size()
	if len(buf) < size {
		return 0, ErrBufferTooSmall
	}

	switch size {
	case 1:
		buf[0] = h.Fmt<<6 | byte(h.ChunkStreamID)

	case 2:
		buf[0] = h.Fmt << 6
		buf[1] = byte(h.ChunkStreamID - 64)

	default:
		id := h.ChunkStreamID - 64
		buf[0] = h.Fmt<<6 | 1
		buf[1] = byte(id)
		buf[2] = byte(id >> 8)
	}

	return size, nil
}

// String implements fmt.Stringer.
func (h BasicHeader) String() string {
	return fmt.Sprintf("fmt=%d csid=%d", h.Fmt, h.ChunkStreamID)
}
