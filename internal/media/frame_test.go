package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameUnmarshal(t *testing.T) {
	for _, ca := range []struct {
		name string
		kind Kind
		body []byte
		dec  Frame
	}{
		{
			"aac config",
			KindAudio,
			[]byte{0xaf, 0x00, 0x12, 0x10},
			Frame{
				Kind:      KindAudio,
				Timestamp: 10,
				Audio: AudioHeader{
					Codec:         AudioCodecAAC,
					Rate:          AudioRate44100,
					Is16Bit:       true,
					Stereo:        true,
					AACPacketType: AACPacketTypeSequenceHeader,
				},
				Payload: []byte{0x12, 0x10},
			},
		},
		{
			"mp3",
			KindAudio,
			[]byte{0x2e, 0x01, 0x02},
			Frame{
				Kind:      KindAudio,
				Timestamp: 10,
				Audio: AudioHeader{
					Codec:   AudioCodecMP3,
					Rate:    AudioRate44100,
					Is16Bit: true,
				},
				Payload: []byte{0x01, 0x02},
			},
		},
		{
			"avc nalu",
			KindVideo,
			[]byte{0x17, 0x01, 0xff, 0xff, 0xfe, 0x05},
			Frame{
				Kind:      KindVideo,
				Timestamp: 10,
				Video: VideoHeader{
					FrameType:       FrameTypeKey,
					Codec:           VideoCodecAVC,
					AVCPacketType:   AVCPacketTypeNALU,
					CompositionTime: -2,
				},
				Payload: []byte{0x05},
			},
		},
		{
			"hevc coded frames",
			KindVideo,
			[]byte{0xa1, 'h', 'v', 'c', '1', 0x00, 0x00, 0x21, 0x01},
			Frame{
				Kind:      KindVideo,
				Timestamp: 10,
				Video: VideoHeader{
					Extended:        true,
					FrameType:       FrameTypeInter,
					FourCC:          FourCCHEVC,
					PacketType:      PacketTypeCodedFrames,
					CompositionTime: 0x21,
				},
				Payload: []byte{0x01},
			},
		},
		{
			"av1 sequence start",
			KindVideo,
			[]byte{0x90, 'a', 'v', '0', '1', 0x81},
			Frame{
				Kind:      KindVideo,
				Timestamp: 10,
				Video: VideoHeader{
					Extended:   true,
					FrameType:  FrameTypeKey,
					FourCC:     FourCCAV1,
					PacketType: PacketTypeSequenceStart,
				},
				Payload: []byte{0x81},
			},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var f Frame
			err := f.Unmarshal(ca.kind, 10, ca.body)
			require.NoError(t, err)
			require.Equal(t, ca.dec, f)
			require.Equal(t, ca.body, f.Marshal())
		})
	}
}

func TestFrameUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		kind Kind
		body []byte
		err  string
	}{
		{"empty audio", KindAudio, nil, "not enough bytes"},
		{"aac without packet type", KindAudio, []byte{0xaf}, "not enough bytes"},
		{"avc without cts", KindVideo, []byte{0x17, 0x01, 0x00}, "not enough bytes"},
		{"bad frame type", KindVideo, []byte{0x07, 0x00}, "invalid frame type: 0"},
		{"bad fourcc", KindVideo, []byte{0x90, 'a', 'b', 'c', 'd'}, "unsupported fourCC: abcd"},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var f Frame
			err := f.Unmarshal(ca.kind, 0, ca.body)
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestFrameClassification(t *testing.T) {
	avcConfig := &Frame{Kind: KindVideo, Video: VideoHeader{
		FrameType: FrameTypeKey, Codec: VideoCodecAVC, AVCPacketType: AVCPacketTypeSequenceHeader,
	}}
	require.True(t, avcConfig.IsIntra())
	require.True(t, avcConfig.IsVideoConfig())
	require.True(t, avcConfig.IsConfig())
	require.False(t, avcConfig.IsAACConfig())

	inter := &Frame{Kind: KindVideo, Video: VideoHeader{
		FrameType: FrameTypeInter, Codec: VideoCodecAVC, AVCPacketType: AVCPacketTypeNALU,
	}}
	require.False(t, inter.IsIntra())
	require.False(t, inter.IsConfig())

	aacConfig := &Frame{Kind: KindAudio, Audio: AudioHeader{
		Codec: AudioCodecAAC, AACPacketType: AACPacketTypeSequenceHeader,
	}}
	require.True(t, aacConfig.IsAACConfig())
	require.False(t, aacConfig.IsIntra())

	c := aacConfig.Clone()
	require.Equal(t, aacConfig.Audio, c.Audio)
}

func TestFrameClone(t *testing.T) {
	f := &Frame{Kind: KindVideo, Timestamp: 5, Payload: []byte{1, 2, 3}}
	c := f.Clone()
	c.Payload[0] = 9
	c.Timestamp = 7
	require.Equal(t, []byte{1, 2, 3}, f.Payload)
	require.Equal(t, uint32(5), f.Timestamp)
}

func TestDescribe(t *testing.T) {
	aac := &Frame{
		Kind: KindAudio,
		Audio: AudioHeader{
			Codec:         AudioCodecAAC,
			AACPacketType: AACPacketTypeSequenceHeader,
		},
		// AAC-LC, 44100Hz, stereo
		Payload: []byte{0x12, 0x10},
	}
	desc, ok := Describe(aac)
	require.True(t, ok)
	require.Equal(t, "MPEG-4 Audio 44100Hz", desc)

	vp9 := &Frame{Kind: KindVideo, Video: VideoHeader{
		Extended: true, FrameType: FrameTypeKey, FourCC: FourCCVP9, PacketType: PacketTypeSequenceStart,
	}}
	desc, ok = Describe(vp9)
	require.True(t, ok)
	require.Equal(t, "VP9", desc)

	broken := &Frame{Kind: KindVideo, Video: VideoHeader{
		FrameType: FrameTypeKey, Codec: VideoCodecAVC, AVCPacketType: AVCPacketTypeSequenceHeader,
	}, Payload: []byte{0x01}}
	desc, ok = Describe(broken)
	require.True(t, ok)
	require.Equal(t, "H264", desc)

	_, ok = Describe(&Frame{Kind: KindAudio})
	require.False(t, ok)
}
