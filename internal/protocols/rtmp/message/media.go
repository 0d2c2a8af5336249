package message

import (
	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/rawmessage"
)

// Audio is an audio message.
type Audio struct {
	media.Frame
	ChunkStreamID   uint32
	MessageStreamID uint32
}

func (m *Audio) unmarshal(raw *rawmessage.Message) error {
	m.ChunkStreamID = raw.ChunkStreamID
	m.MessageStreamID = raw.MessageStreamID
	return m.Frame.Unmarshal(media.KindAudio, raw.Timestamp, raw.Body)
}

func (m Audio) marshal() (*rawmessage.Message, error) {
	return &rawmessage.Message{
		ChunkStreamID:   m.ChunkStreamID,
		Timestamp:       m.Timestamp,
		Type:            uint8(TypeAudio),
		MessageStreamID: m.MessageStreamID,
		Body:            m.Frame.Marshal(),
	}, nil
}

// Video is a video message.
type Video struct {
	media.Frame
	ChunkStreamID   uint32
	MessageStreamID uint32
}

func (m *Video) unmarshal(raw *rawmessage.Message) error {
	m.ChunkStreamID = raw.ChunkStreamID
	m.MessageStreamID = raw.MessageStreamID
	return m.Frame.Unmarshal(media.KindVideo, raw.Timestamp, raw.Body)
}

func (m Video) marshal() (*rawmessage.Message, error) {
	return &rawmessage.Message{
		ChunkStreamID:   m.ChunkStreamID,
		Timestamp:       m.Timestamp,
		Type:            uint8(TypeVideo),
		MessageStreamID: m.MessageStreamID,
		Body:            m.Frame.Marshal(),
	}, nil
}

// FromFrame wraps a frame into an audio or video message.
func FromFrame(f *media.Frame, messageStreamID uint32) Message {
	if f.Kind == media.KindAudio {
		return &Audio{
			Frame:           *f,
			ChunkStreamID:   AudioChunkStreamID,
			MessageStreamID: messageStreamID,
		}
	}

	return &Video{
		Frame:           *f,
		ChunkStreamID:   VideoChunkStreamID,
		MessageStreamID: messageStreamID,
	}
}
