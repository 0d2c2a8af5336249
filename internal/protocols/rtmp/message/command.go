package message

import (
	"fmt"

	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/rawmessage"
)

// skipAMF3Marker removes the format marker that precedes
// AMF0-compatible payloads of AMF3 messages.
func skipAMF3Marker(body []byte) []byte {
	if len(body) > 0 && body[0] == 0 {
		return body[1:]
	}
	return body
}

// Command is a command message.
type Command struct {
	media.Command
	ChunkStreamID   uint32
	MessageStreamID uint32
	AMF3            bool
}

func (m *Command) unmarshal(raw *rawmessage.Message) error {
	m.ChunkStreamID = raw.ChunkStreamID
	m.MessageStreamID = raw.MessageStreamID
	m.AMF3 = (Type(raw.Type) == TypeCommandAMF3)

	body := raw.Body
	if m.AMF3 {
		body = skipAMF3Marker(body)
	}

	payload, err := amf0.Unmarshal(body)
	if err != nil {
		return err
	}

	if len(payload) < 2 {
		return fmt.Errorf("invalid command")
	}

	var ok bool
	m.Name, ok = payload[0].(string)
	if !ok {
		return fmt.Errorf("invalid command name")
	}

	m.TransactionID, ok = payload[1].(float64)
	if !ok {
		return fmt.Errorf("invalid transaction ID")
	}

	m.Object = nil
	m.Arguments = nil

	if len(payload) >= 3 {
		m.Object = payload[2]
		m.Arguments = payload[3:]
	}

	return nil
}

func (m Command) marshal() (*rawmessage.Message, error) {
	data := make(amf0.Data, 0, 3+len(m.Arguments))
	data = append(data, m.Name, m.TransactionID, m.Object)
	data = append(data, m.Arguments...)

	body, err := data.Marshal()
	if err != nil {
		return nil, err
	}

	typ := TypeCommandAMF0
	if m.AMF3 {
		typ = TypeCommandAMF3
		body = append([]byte{0}, body...)
	}

	return &rawmessage.Message{
		ChunkStreamID:   m.ChunkStreamID,
		Type:            uint8(typ),
		MessageStreamID: m.MessageStreamID,
		Body:            body,
	}, nil
}

// Data is a data message.
type Data struct {
	media.MetaData
	ChunkStreamID   uint32
	MessageStreamID uint32
	AMF3            bool
}

func (m *Data) unmarshal(raw *rawmessage.Message) error {
	m.ChunkStreamID = raw.ChunkStreamID
	m.MessageStreamID = raw.MessageStreamID
	m.Timestamp = raw.Timestamp
	m.AMF3 = (Type(raw.Type) == TypeDataAMF3)

	body := raw.Body
	if m.AMF3 {
		body = skipAMF3Marker(body)
	}

	var err error
	m.Values, err = amf0.Unmarshal(body)
	return err
}

func (m Data) marshal() (*rawmessage.Message, error) {
	body, err := m.Values.Marshal()
	if err != nil {
		return nil, err
	}

	typ := TypeDataAMF0
	if m.AMF3 {
		typ = TypeDataAMF3
		body = append([]byte{0}, body...)
	}

	return &rawmessage.Message{
		ChunkStreamID:   m.ChunkStreamID,
		Timestamp:       m.Timestamp,
		Type:            uint8(typ),
		MessageStreamID: m.MessageStreamID,
		Body:            body,
	}, nil
}

// SharedObject is a shared object message.
// Its body is not decoded.
type SharedObject struct {
	ChunkStreamID   uint32
	MessageStreamID uint32
	Timestamp       uint32
	AMF3            bool
	Body            []byte
}

func (m *SharedObject) unmarshal(raw *rawmessage.Message) error {
	m.ChunkStreamID = raw.ChunkStreamID
	m.MessageStreamID = raw.MessageStreamID
	m.Timestamp = raw.Timestamp
	m.AMF3 = (Type(raw.Type) == TypeSharedObjectAMF3)
	m.Body = raw.Body
	return nil
}

func (m SharedObject) marshal() (*rawmessage.Message, error) {
	typ := TypeSharedObjectAMF0
	if m.AMF3 {
		typ = TypeSharedObjectAMF3
	}

	return &rawmessage.Message{
		ChunkStreamID:   m.ChunkStreamID,
		Timestamp:       m.Timestamp,
		Type:            uint8(typ),
		MessageStreamID: m.MessageStreamID,
		Body:            m.Body,
	}, nil
}
