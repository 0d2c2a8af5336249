package message

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/rawmessage"
)

var cases = []struct {
	name string
	dec  Message
	enc  *rawmessage.Message
}{
	{
		"set chunk size",
		&SetChunkSize{Value: 65536},
		&rawmessage.Message{
			ChunkStreamID: ControlChunkStreamID,
			Type:          uint8(TypeSetChunkSize),
			Body:          []byte{0x00, 0x01, 0x00, 0x00},
		},
	},
	{
		"abort",
		&Abort{ChunkStreamID: 6},
		&rawmessage.Message{
			ChunkStreamID: ControlChunkStreamID,
			Type:          uint8(TypeAbortMessage),
			Body:          []byte{0x00, 0x00, 0x00, 0x06},
		},
	},
	{
		"acknowledge",
		&Acknowledge{Value: 7863534},
		&rawmessage.Message{
			ChunkStreamID: ControlChunkStreamID,
			Type:          uint8(TypeAcknowledge),
			Body:          []byte{0x00, 0x77, 0xfc, 0xee},
		},
	},
	{
		"set window ack size",
		&SetWindowAckSize{Value: 2500000},
		&rawmessage.Message{
			ChunkStreamID: ControlChunkStreamID,
			Type:          uint8(TypeSetWindowAckSize),
			Body:          []byte{0x00, 0x26, 0x25, 0xa0},
		},
	},
	{
		"set peer bandwidth",
		&SetPeerBandwidth{Value: 2500000, Type: LimitTypeDynamic},
		&rawmessage.Message{
			ChunkStreamID: ControlChunkStreamID,
			Type:          uint8(TypeSetPeerBandwidth),
			Body:          []byte{0x00, 0x26, 0x25, 0xa0, 0x02},
		},
	},
	{
		"stream begin",
		&UserControlStreamBegin{StreamID: 1},
		&rawmessage.Message{
			ChunkStreamID: ControlChunkStreamID,
			Type:          uint8(TypeUserControl),
			Body:          []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		},
	},
	{
		"set buffer length",
		&UserControlSetBufferLength{StreamID: 1, BufferLength: 3000},
		&rawmessage.Message{
			ChunkStreamID: ControlChunkStreamID,
			Type:          uint8(TypeUserControl),
			Body:          []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x0b, 0xb8},
		},
	},
	{
		"ping request",
		&UserControlPingRequest{ServerTime: 569834435},
		&rawmessage.Message{
			ChunkStreamID: ControlChunkStreamID,
			Type:          uint8(TypeUserControl),
			Body:          []byte{0x00, 0x06, 0x21, 0xf6, 0xfb, 0xc3},
		},
	},
	{
		"command",
		&Command{
			Command: media.Command{
				Name:          "createStream",
				TransactionID: 2,
				Object:        nil,
				Arguments:     []interface{}{},
			},
			ChunkStreamID: CommandChunkStreamID,
		},
		&rawmessage.Message{
			ChunkStreamID: CommandChunkStreamID,
			Type:          uint8(TypeCommandAMF0),
			Body: []byte{
				0x02, 0x00, 0x0c, 0x63, 0x72, 0x65, 0x61, 0x74,
				0x65, 0x53, 0x74, 0x72, 0x65, 0x61, 0x6d, 0x00,
				0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x05,
			},
		},
	},
	{
		"data",
		&Data{
			MetaData: media.MetaData{
				Timestamp: 30,
				Values:    amf0.Data{"onMetaData", amf0.ECMAArray{{Key: "width", Value: float64(1280)}}},
			},
			ChunkStreamID:   StreamCommandChunkStreamID,
			MessageStreamID: 1,
		},
		&rawmessage.Message{
			ChunkStreamID:   StreamCommandChunkStreamID,
			Timestamp:       30,
			Type:            uint8(TypeDataAMF0),
			MessageStreamID: 1,
			Body: []byte{
				0x02, 0x00, 0x0a, 0x6f, 0x6e, 0x4d, 0x65, 0x74,
				0x61, 0x44, 0x61, 0x74, 0x61, 0x08, 0x00, 0x00,
				0x00, 0x01, 0x00, 0x05, 0x77, 0x69, 0x64, 0x74,
				0x68, 0x00, 0x40, 0x94, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x09,
			},
		},
	},
	{
		"video",
		&Video{
			Frame: media.Frame{
				Kind:      media.KindVideo,
				Timestamp: 40,
				Video: media.VideoHeader{
					FrameType:     media.FrameTypeKey,
					Codec:         media.VideoCodecAVC,
					AVCPacketType: media.AVCPacketTypeNALU,
				},
				Payload: []byte{0x00, 0x00, 0x00, 0x01, 0x65},
			},
			ChunkStreamID:   VideoChunkStreamID,
			MessageStreamID: 1,
		},
		&rawmessage.Message{
			ChunkStreamID:   VideoChunkStreamID,
			Timestamp:       40,
			Type:            uint8(TypeVideo),
			MessageStreamID: 1,
			Body:            []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x65},
		},
	},
}

func TestUnmarshal(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			msg, err := Unmarshal(ca.enc)
			require.NoError(t, err)
			require.Equal(t, ca.dec, msg)
		})
	}
}

func TestMarshal(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			enc, err := Marshal(ca.dec)
			require.NoError(t, err)
			require.Equal(t, ca.enc, enc)
		})
	}
}

func TestUnmarshalAMF3(t *testing.T) {
	body, err := amf0.Data{"connect", float64(1), amf0.Object{{Key: "app", Value: "live"}}}.Marshal()
	require.NoError(t, err)

	msg, err := Unmarshal(&rawmessage.Message{
		ChunkStreamID: 3,
		Type:          uint8(TypeCommandAMF3),
		Body:          append([]byte{0x00}, body...),
	})
	require.NoError(t, err)
	require.Equal(t, &Command{
		Command: media.Command{
			Name:          "connect",
			TransactionID: 1,
			Object:        amf0.Object{{Key: "app", Value: "live"}},
			Arguments:     []interface{}{},
		},
		ChunkStreamID: 3,
		AMF3:          true,
	}, msg)

	enc, err := Marshal(msg)
	require.NoError(t, err)
	require.Equal(t, append([]byte{0x00}, body...), enc.Body)

	// the marker is optional
	msg, err = Unmarshal(&rawmessage.Message{
		ChunkStreamID: 3,
		Type:          uint8(TypeCommandAMF3),
		Body:          body,
	})
	require.NoError(t, err)
	require.Equal(t, "connect", msg.(*Command).Name)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		raw  *rawmessage.Message
		err  string
	}{
		{
			"set chunk size wrong size",
			&rawmessage.Message{ChunkStreamID: 2, Type: 1, Body: []byte{0, 0, 1}},
			"invalid SetChunkSize message: invalid body size",
		},
		{
			"set peer bandwidth wrong chunk stream",
			&rawmessage.Message{ChunkStreamID: 3, Type: 6, Body: []byte{0, 0, 0, 1, 2}},
			"invalid SetPeerBandwidth message: unexpected chunk stream ID",
		},
		{
			"ping with buffer length size",
			&rawmessage.Message{ChunkStreamID: 2, Type: 4, Body: []byte{0, 6, 0, 0, 0, 1, 0, 0, 0, 1}},
			"invalid UserControl message: invalid body size",
		},
		{
			"set buffer length with ping size",
			&rawmessage.Message{ChunkStreamID: 2, Type: 4, Body: []byte{0, 3, 0, 0, 0, 1}},
			"invalid UserControl message: invalid body size",
		},
		{
			"unknown user control",
			&rawmessage.Message{ChunkStreamID: 2, Type: 4, Body: []byte{0, 5, 0, 0, 0, 1}},
			"invalid user control type: unknown (5)",
		},
		{
			"unknown type",
			&rawmessage.Message{ChunkStreamID: 3, Type: 7},
			"invalid message type: 7",
		},
		{
			"command without transaction ID",
			&rawmessage.Message{ChunkStreamID: 3, Type: 20, Body: []byte{0x02, 0x00, 0x01, 0x61}},
			"invalid CommandAMF0 message: invalid command",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, err := Unmarshal(ca.raw)
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestAggregateSplit(t *testing.T) {
	body := []byte{
		// audio tag, ts 1000
		0x08, 0x00, 0x00, 0x02, 0x00, 0x03, 0xe8, 0x00, 0x00, 0x00, 0x00,
		0xaf, 0x01,
		0x00, 0x00, 0x00, 0x0d,
		// video tag, ts 1040
		0x09, 0x00, 0x00, 0x01, 0x00, 0x04, 0x10, 0x00, 0x00, 0x00, 0x00,
		0x27,
		0x00, 0x00, 0x00, 0x0c,
	}

	msg, err := Unmarshal(&rawmessage.Message{
		ChunkStreamID:   4,
		Timestamp:       5000,
		Type:            uint8(TypeAggregate),
		MessageStreamID: 1,
		Body:            body,
	})
	require.NoError(t, err)

	msgs, err := msg.(*Aggregate).Split()
	require.NoError(t, err)
	require.Equal(t, []*rawmessage.Message{
		{ChunkStreamID: 4, Timestamp: 5000, Type: 8, MessageStreamID: 1, Body: []byte{0xaf, 0x01}},
		{ChunkStreamID: 4, Timestamp: 5040, Type: 9, MessageStreamID: 1, Body: []byte{0x27}},
	}, msgs)

	_, err = Aggregate{Body: body[:14]}.Split()
	require.EqualError(t, err, "not enough bytes")
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "CommandAMF3", TypeCommandAMF3.String())
	require.Equal(t, "unknown (7)", Type(7).String())
	require.True(t, TypeSetPeerBandwidth.IsControl())
	require.False(t, TypeAudio.IsControl())
	require.Equal(t, "PingResponse", UserControlTypePingResponse.String())
}
