package message

import (
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/rawmessage"
)

const aggregateTagHeaderSize = 11

// Aggregate is an aggregate message,
// a sequence of FLV tags carrying audio, video and data messages.
type Aggregate struct {
	ChunkStreamID   uint32
	MessageStreamID uint32
	Timestamp       uint32
	Body            []byte
}

func (m *Aggregate) unmarshal(raw *rawmessage.Message) error {
	m.ChunkStreamID = raw.ChunkStreamID
	m.MessageStreamID = raw.MessageStreamID
	m.Timestamp = raw.Timestamp
	m.Body = raw.Body
	return nil
}

func (m Aggregate) marshal() (*rawmessage.Message, error) {
	return &rawmessage.Message{
		ChunkStreamID:   m.ChunkStreamID,
		Timestamp:       m.Timestamp,
		Type:            uint8(TypeAggregate),
		MessageStreamID: m.MessageStreamID,
		Body:            m.Body,
	}, nil
}

// Split returns the messages contained in the aggregate.
// Timestamps are shifted so that the first sub-message
// has the timestamp of the aggregate.
func (m Aggregate) Split() ([]*rawmessage.Message, error) {
	var ret []*rawmessage.Message
	var first uint32
	buf := m.Body

	for len(buf) > 0 {
		if len(buf) < aggregateTagHeaderSize {
			return nil, fmt.Errorf("not enough bytes")
		}

		typ := buf[0]
		size := uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
		ts := uint32(buf[7])<<24 | uint32(buf[4])<<16 | uint32(buf[5])<<8 | uint32(buf[6])
		buf = buf[aggregateTagHeaderSize:]

		switch Type(typ) {
		case TypeAudio, TypeVideo, TypeDataAMF0:
		default:
			return nil, fmt.Errorf("unsupported aggregated message type: %v", Type(typ))
		}

		// body is followed by the size of the previous tag
		if uint32(len(buf)) < size+4 {
			return nil, fmt.Errorf("not enough bytes")
		}

		if ret == nil {
			first = ts
		}

		ret = append(ret, &rawmessage.Message{
			ChunkStreamID:   m.ChunkStreamID,
			Timestamp:       m.Timestamp + (ts - first),
			Type:            typ,
			MessageStreamID: m.MessageStreamID,
			Body:            buf[:size],
		})

		buf = buf[size+4:]
	}

	return ret, nil
}
