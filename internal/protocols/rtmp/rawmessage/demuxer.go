package rawmessage

import (
	"errors"
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/chunk"
)

const (
	// DefaultChunkSize is the chunk size in use before any SetChunkSize.
	DefaultChunkSize = 128

	maxChunkSize = 0x7FFFFFFF
	maxBodySize  = 10 * 1024 * 1024
)

// ErrUnknownChunkStream is returned when a chunk of type 1, 2 or 3 refers to
// a chunk stream that never received a type 0 chunk.
var ErrUnknownChunkStream = errors.New("chunk stream has no previous type 0 chunk")

// DemuxerState is the state of a Demuxer.
type DemuxerState int

// states.
const (
	DemuxerStateHeaderWait DemuxerState = iota
	DemuxerStateTypeWait
	DemuxerStateExtTimestampWait
	DemuxerStateDataWait
)

// String implements fmt.Stringer.
func (s DemuxerState) String() string {
	switch s {
	case DemuxerStateHeaderWait:
		return "chunkHeaderWait"
	case DemuxerStateTypeWait:
		return "chunkTypeWait"
	case DemuxerStateExtTimestampWait:
		return "chunkExtTimestampWait"
	case DemuxerStateDataWait:
		return "chunkDataWait"
	}
	return "unknown"
}

type inputStream struct {
	initialized     bool
	typ             uint8
	messageStreamID uint32
	bodyLen         uint32
	timestamp       uint32
	timestampDelta  uint32
	hasExtTimestamp bool

	body []byte
	recv uint32
}

// Demuxer reassembles messages from chunks.
// Bytes are pushed with Feed, and every complete message is passed to OnMessage.
type Demuxer struct {
	// called when a message is complete.
	// The demuxer state can be changed from inside the callback,
	// the change applies to the next chunk.
	OnMessage func(*Message) error

	chunkSize uint32
	state     DemuxerState
	bh        chunk.BasicHeader
	header    chunk.Record
	ext       chunk.Record
	cur       *inputStream
	chunkLeft uint32
	streams   map[uint32]*inputStream
}

// NewDemuxer allocates a Demuxer.
func NewDemuxer(onMessage func(*Message) error) *Demuxer {
	d := &Demuxer{
		OnMessage: onMessage,
		chunkSize: DefaultChunkSize,
		streams:   make(map[uint32]*inputStream),
	}
	d.bh.Init()
	d.ext.Init(chunk.ExtendedTimestampSize)
	return d
}

// State returns the state.
func (d *Demuxer) State() DemuxerState {
	return d.state
}

// ChunkSize returns the maximum size of incoming chunks.
func (d *Demuxer) ChunkSize() uint32 {
	return d.chunkSize
}

// SetChunkSize sets the maximum size of incoming chunks.
func (d *Demuxer) SetChunkSize(v uint32) error {
	if v < 1 || v > maxChunkSize {
		return fmt.Errorf("invalid chunk size: %d", v)
	}

	d.chunkSize = v
	return nil
}

// Abort discards the partially received message of a chunk stream.
func (d *Demuxer) Abort(chunkStreamID uint32) {
	st, ok := d.streams[chunkStreamID]
	if !ok || st == d.cur {
		return
	}

	st.body = nil
	st.recv = 0
}

// Feed consumes bytes and returns the number of bytes consumed.
// Any returned error is fatal.
func (d *Demuxer) Feed(p []byte) (int, error) {
	n := 0

	for n < len(p) {
		switch d.state {
		case DemuxerStateHeaderWait:
			n += d.bh.Feed(p[n:])
			if !d.bh.IsParsed() {
				continue
			}

			err := d.onBasicHeader()
			if err != nil {
				return n, err
			}

		case DemuxerStateTypeWait:
			n += d.header.Feed(p[n:])
			if !d.header.IsParsed() {
				continue
			}

			err := d.onMessageHeader()
			if err != nil {
				return n, err
			}

		case DemuxerStateExtTimestampWait:
			n += d.ext.Feed(p[n:])
			if !d.ext.IsParsed() {
				continue
			}

			err := d.onExtTimestamp()
			if err != nil {
				return n, err
			}

		case DemuxerStateDataWait:
			le := uint32(len(p) - n)
			if le > d.chunkLeft {
				le = d.chunkLeft
			}

			copy(d.cur.body[d.cur.recv:], p[n:n+int(le)])
			d.cur.recv += le
			d.chunkLeft -= le
			n += int(le)

			if d.chunkLeft == 0 {
				err := d.onChunkEnd()
				if err != nil {
					return n, err
				}
			}
		}
	}

	return n, nil
}

func (d *Demuxer) onBasicHeader() error {
	typ := d.bh.Fmt

	st, ok := d.streams[d.bh.ChunkStreamID]
	if !ok {
		st = &inputStream{}
		d.streams[d.bh.ChunkStreamID] = st
	}

	if typ != 0 && !st.initialized {
		return fmt.Errorf("%w: type %d chunk on chunk stream %d", ErrUnknownChunkStream, typ, d.bh.ChunkStreamID)
	}

	if typ != 3 && st.recv != 0 {
		return fmt.Errorf("received type %d chunk but expected type 3 chunk", typ)
	}

	d.cur = st

	size := chunk.HeaderSize(typ)
	if size == 0 {
		return d.onMessageHeader()
	}

	d.header.Init(size)
	d.state = DemuxerStateTypeWait
	return nil
}

func (d *Demuxer) onMessageHeader() error {
	st := d.cur

	switch d.bh.Fmt {
	case 0:
		var h chunk.Header0
		err := h.Unmarshal(d.header.Bytes())
		if err != nil {
			return err
		}

		st.initialized = true
		st.timestamp = h.Timestamp
		st.timestampDelta = 0
		st.bodyLen = h.BodyLen
		st.typ = h.Type
		st.messageStreamID = h.MessageStreamID
		st.hasExtTimestamp = h.HasExtendedTimestamp()

	case 1:
		var h chunk.Header1
		err := h.Unmarshal(d.header.Bytes())
		if err != nil {
			return err
		}

		st.timestampDelta = h.TimestampDelta
		st.bodyLen = h.BodyLen
		st.typ = h.Type
		st.hasExtTimestamp = h.HasExtendedTimestamp()

	case 2:
		var h chunk.Header2
		err := h.Unmarshal(d.header.Bytes())
		if err != nil {
			return err
		}

		st.timestampDelta = h.TimestampDelta
		st.hasExtTimestamp = h.HasExtendedTimestamp()
	}

	if st.hasExtTimestamp {
		d.ext.Reset()
		d.state = DemuxerStateExtTimestampWait
		return nil
	}

	return d.onChunkBegin()
}

func (d *Demuxer) onExtTimestamp() error {
	v, err := chunk.UnmarshalExtendedTimestamp(d.ext.Bytes())
	if err != nil {
		return err
	}

	// in type 3 chunks the extended timestamp repeats the one of the
	// previous header and carries no new information.
	switch d.bh.Fmt {
	case 0:
		d.cur.timestamp = v
	case 1, 2:
		d.cur.timestampDelta = v
	}

	return d.onChunkBegin()
}

func (d *Demuxer) onChunkBegin() error {
	st := d.cur

	if st.recv == 0 {
		if st.bodyLen > maxBodySize {
			return fmt.Errorf("body size (%d) exceeds maximum (%d)", st.bodyLen, maxBodySize)
		}

		if d.bh.Fmt != 0 {
			st.timestamp += st.timestampDelta
		}

		st.body = make([]byte, st.bodyLen)
	}

	d.chunkLeft = st.bodyLen - st.recv
	if d.chunkLeft > d.chunkSize {
		d.chunkLeft = d.chunkSize
	}

	if d.chunkLeft == 0 {
		return d.onChunkEnd()
	}

	d.state = DemuxerStateDataWait
	return nil
}

func (d *Demuxer) onChunkEnd() error {
	st := d.cur
	csid := d.bh.ChunkStreamID

	d.state = DemuxerStateHeaderWait
	d.bh.Reset()
	d.cur = nil

	if st.recv != st.bodyLen {
		return nil
	}

	msg := &Message{
		ChunkStreamID:   csid,
		Timestamp:       st.timestamp,
		Type:            st.typ,
		MessageStreamID: st.messageStreamID,
		Body:            st.body,
	}

	st.body = nil
	st.recv = 0

	return d.OnMessage(msg)
}
