package media

import (
	"fmt"
)

// AudioCodec is the codec ID of the audio tag header.
type AudioCodec uint8

// audio codecs.
const (
	AudioCodecLinearPCMPlatform AudioCodec = 0
	AudioCodecADPCM             AudioCodec = 1
	AudioCodecMP3               AudioCodec = 2
	AudioCodecLinearPCMLE       AudioCodec = 3
	AudioCodecNellymoser16kMono AudioCodec = 4
	AudioCodecNellymoser8kMono  AudioCodec = 5
	AudioCodecNellymoser        AudioCodec = 6
	AudioCodecG711A             AudioCodec = 7
	AudioCodecG711U             AudioCodec = 8
	AudioCodecAAC               AudioCodec = 10
	AudioCodecSpeex             AudioCodec = 11
	AudioCodecMP38k             AudioCodec = 14
	AudioCodecDeviceSpecific    AudioCodec = 15
)

// String implements fmt.Stringer.
func (c AudioCodec) String() string {
	switch c {
	case AudioCodecLinearPCMPlatform:
		return "LPCM"
	case AudioCodecADPCM:
		return "ADPCM"
	case AudioCodecMP3:
		return "MP3"
	case AudioCodecLinearPCMLE:
		return "LPCM-LE"
	case AudioCodecNellymoser16kMono, AudioCodecNellymoser8kMono, AudioCodecNellymoser:
		return "Nellymoser"
	case AudioCodecG711A:
		return "G711A"
	case AudioCodecG711U:
		return "G711U"
	case AudioCodecAAC:
		return "AAC"
	case AudioCodecSpeex:
		return "Speex"
	case AudioCodecMP38k:
		return "MP3-8k"
	case AudioCodecDeviceSpecific:
		return "device-specific"
	}
	return fmt.Sprintf("unknown (%d)", uint8(c))
}

// AudioRate is the sample rate class of the audio tag header.
type AudioRate uint8

// audio rates.
const (
	AudioRate5512  AudioRate = 0
	AudioRate11025 AudioRate = 1
	AudioRate22050 AudioRate = 2
	AudioRate44100 AudioRate = 3
)

// Hz returns the sample rate in Hz.
func (r AudioRate) Hz() int {
	switch r {
	case AudioRate5512:
		return 5512
	case AudioRate11025:
		return 11025
	case AudioRate22050:
		return 22050
	default:
		return 44100
	}
}

// AACPacketType is the packet type of AAC audio.
type AACPacketType uint8

// AAC packet types.
const (
	AACPacketTypeSequenceHeader AACPacketType = 0
	AACPacketTypeRaw            AACPacketType = 1
)

// AudioHeader is the audio tag header.
type AudioHeader struct {
	Codec         AudioCodec
	Rate          AudioRate
	Is16Bit       bool
	Stereo        bool
	AACPacketType AACPacketType
}

func (h *AudioHeader) unmarshal(body []byte) (int, error) {
	if len(body) < 1 {
		return 0, fmt.Errorf("not enough bytes")
	}

	h.Codec = AudioCodec(body[0] >> 4)
	h.Rate = AudioRate((body[0] >> 2) & 0x03)
	h.Is16Bit = ((body[0] >> 1) & 0x01) != 0
	h.Stereo = (body[0] & 0x01) != 0

	if h.Codec != AudioCodecAAC {
		return 1, nil
	}

	if len(body) < 2 {
		return 0, fmt.Errorf("not enough bytes")
	}

	h.AACPacketType = AACPacketType(body[1])
	switch h.AACPacketType {
	case AACPacketTypeSequenceHeader, AACPacketTypeRaw:
	default:
		return 0, fmt.Errorf("invalid AAC packet type: %d", body[1])
	}

	return 2, nil
}

func (h AudioHeader) size() int {
	if h.Codec == AudioCodecAAC {
		return 2
	}
	return 1
}

func (h AudioHeader) marshalTo(buf []byte) int {
	buf[0] = byte(h.Codec)<<4 | byte(h.Rate&0x03)<<2
	if h.Is16Bit {
		buf[0] |= 1 << 1
	}
	if h.Stereo {
		buf[0] |= 1
	}

	if h.Codec != AudioCodecAAC {
		return 1
	}

	buf[1] = byte(h.AACPacketType)
	return 2
}
