package media

import (
	"fmt"
	"time"
)

// Kind is the kind of a frame.
type Kind int

// kinds.
const (
	KindAudio Kind = iota
	KindVideo
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	}
	return fmt.Sprintf("unknown (%d)", int(k))
}

// Frame is an audio or video frame.
type Frame struct {
	Kind      Kind
	Timestamp uint32

	// SenderTime is the time the frame was received from its producer.
	SenderTime time.Time

	Audio AudioHeader
	Video VideoHeader

	// Payload is the elementary stream data that follows the tag headers.
	Payload []byte
}

// Unmarshal decodes a frame from the body of an audio or video message.
func (f *Frame) Unmarshal(kind Kind, timestamp uint32, body []byte) error {
	f.Kind = kind
	f.Timestamp = timestamp

	var n int
	var err error

	switch kind {
	case KindAudio:
		f.Audio = AudioHeader{}
		n, err = f.Audio.unmarshal(body)

	case KindVideo:
		f.Video = VideoHeader{}
		n, err = f.Video.unmarshal(body)

	default:
		return fmt.Errorf("invalid frame kind: %v", kind)
	}

	if err != nil {
		return err
	}

	f.Payload = body[n:]
	return nil
}

// MarshalSize returns the size of the encoded frame.
func (f Frame) MarshalSize() int {
	if f.Kind == KindAudio {
		return f.Audio.size() + len(f.Payload)
	}
	return f.Video.size() + len(f.Payload)
}

// Marshal encodes the frame into a message body.
func (f Frame) Marshal() []byte {
	buf := make([]byte, f.MarshalSize())

	var n int
	if f.Kind == KindAudio {
		n = f.Audio.marshalTo(buf)
	} else {
		n = f.Video.marshalTo(buf)
	}

	copy(buf[n:], f.Payload)
	return buf
}

// Clone returns a copy of the frame that does not share the payload.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Payload = append([]byte(nil), f.Payload...)
	return &c
}

// IsIntra returns whether the frame is a video key frame.
func (f *Frame) IsIntra() bool {
	return f.Kind == KindVideo &&
		(f.Video.FrameType == FrameTypeKey || f.Video.FrameType == FrameTypeGeneratedKey)
}

// IsVideoConfig returns whether the frame carries a video decoder configuration.
func (f *Frame) IsVideoConfig() bool {
	if f.Kind != KindVideo {
		return false
	}

	if f.Video.Extended {
		return f.Video.PacketType == PacketTypeSequenceStart
	}

	return f.Video.Codec == VideoCodecAVC && f.Video.AVCPacketType == AVCPacketTypeSequenceHeader
}

// IsAACConfig returns whether the frame carries an AAC audio specific config.
func (f *Frame) IsAACConfig() bool {
	return f.Kind == KindAudio &&
		f.Audio.Codec == AudioCodecAAC &&
		f.Audio.AACPacketType == AACPacketTypeSequenceHeader
}

// IsConfig returns whether the frame is a codec configuration frame.
func (f *Frame) IsConfig() bool {
	return f.IsVideoConfig() || f.IsAACConfig()
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	if f.Kind == KindAudio {
		return fmt.Sprintf("audio ts=%d codec=%v len=%d", f.Timestamp, f.Audio.Codec, len(f.Payload))
	}
	if f.Video.Extended {
		return fmt.Sprintf("video ts=%d fourcc=%v type=%v packet=%v len=%d",
			f.Timestamp, f.Video.FourCC, f.Video.FrameType, f.Video.PacketType, len(f.Payload))
	}
	return fmt.Sprintf("video ts=%d codec=%v type=%v len=%d",
		f.Timestamp, f.Video.Codec, f.Video.FrameType, len(f.Payload))
}
