package media

import (
	"fmt"
)

// VideoCodec is the codec ID of the legacy video tag header.
type VideoCodec uint8

// video codecs.
const (
	VideoCodecFLV1 VideoCodec = 2
	VideoCodecSV   VideoCodec = 3
	VideoCodecVP6  VideoCodec = 4
	VideoCodecVP6A VideoCodec = 5
	VideoCodecSV2  VideoCodec = 6
	VideoCodecAVC  VideoCodec = 7
)

// String implements fmt.Stringer.
func (c VideoCodec) String() string {
	switch c {
	case VideoCodecFLV1:
		return "FLV1"
	case VideoCodecSV:
		return "ScreenVideo"
	case VideoCodecVP6:
		return "VP6"
	case VideoCodecVP6A:
		return "VP6A"
	case VideoCodecSV2:
		return "ScreenVideo2"
	case VideoCodecAVC:
		return "H264"
	}
	return fmt.Sprintf("unknown (%d)", uint8(c))
}

// FourCC is the codec identifier of the extended video tag header.
type FourCC uint32

// fourCC values.
const (
	FourCCAV1  FourCC = 'a'<<24 | 'v'<<16 | '0'<<8 | '1'
	FourCCVP9  FourCC = 'v'<<24 | 'p'<<16 | '0'<<8 | '9'
	FourCCHEVC FourCC = 'h'<<24 | 'v'<<16 | 'c'<<8 | '1'
	FourCCAVC  FourCC = 'a'<<24 | 'v'<<16 | 'c'<<8 | '1'
)

// String implements fmt.Stringer.
func (f FourCC) String() string {
	return string([]byte{byte(f >> 24), byte(f >> 16), byte(f >> 8), byte(f)})
}

// FrameType is the frame type of the video tag header.
type FrameType uint8

// frame types.
const (
	FrameTypeKey          FrameType = 1
	FrameTypeInter        FrameType = 2
	FrameTypeDisposable   FrameType = 3
	FrameTypeGeneratedKey FrameType = 4
	FrameTypeInfo         FrameType = 5
)

// String implements fmt.Stringer.
func (t FrameType) String() string {
	switch t {
	case FrameTypeKey:
		return "intra"
	case FrameTypeInter:
		return "inter"
	case FrameTypeDisposable:
		return "disposable"
	case FrameTypeGeneratedKey:
		return "generated-key"
	case FrameTypeInfo:
		return "info"
	}
	return fmt.Sprintf("unknown (%d)", uint8(t))
}

// AVCPacketType is the packet type of legacy AVC video.
type AVCPacketType uint8

// AVC packet types.
const (
	AVCPacketTypeSequenceHeader AVCPacketType = 0
	AVCPacketTypeNALU           AVCPacketType = 1
	AVCPacketTypeEndOfSequence  AVCPacketType = 2
)

// PacketType is the packet type of the extended video tag header.
type PacketType uint8

// packet types.
const (
	PacketTypeSequenceStart        PacketType = 0
	PacketTypeCodedFrames          PacketType = 1
	PacketTypeSequenceEnd          PacketType = 2
	PacketTypeCodedFramesX         PacketType = 3
	PacketTypeMetadata             PacketType = 4
	PacketTypeMPEG2TSSequenceStart PacketType = 5
)

// String implements fmt.Stringer.
func (t PacketType) String() string {
	switch t {
	case PacketTypeSequenceStart:
		return "sequence-start"
	case PacketTypeCodedFrames:
		return "coded-frames"
	case PacketTypeSequenceEnd:
		return "sequence-end"
	case PacketTypeCodedFramesX:
		return "coded-frames-x"
	case PacketTypeMetadata:
		return "metadata"
	case PacketTypeMPEG2TSSequenceStart:
		return "mpeg2ts-sequence-start"
	}
	return fmt.Sprintf("unknown (%d)", uint8(t))
}

// VideoHeader is the video tag header, either legacy or extended.
type VideoHeader struct {
	Extended  bool
	FrameType FrameType

	// legacy
	Codec         VideoCodec
	AVCPacketType AVCPacketType

	// extended
	FourCC     FourCC
	PacketType PacketType

	// CompositionTime is present in legacy AVC frames
	// and in extended AVC/HEVC coded frames.
	CompositionTime int32
}

func int24(buf []byte) int32 {
	v := int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2])
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

func putInt24(buf []byte, v int32) {
	u := uint32(v) & 0xFFFFFF
	buf[0] = byte(u >> 16)
	buf[1] = byte(u >> 8)
	buf[2] = byte(u)
}

func (h VideoHeader) hasCompositionTime() bool {
	if h.Extended {
		return h.PacketType == PacketTypeCodedFrames &&
			(h.FourCC == FourCCHEVC || h.FourCC == FourCCAVC)
	}
	return h.Codec == VideoCodecAVC
}

func (h *VideoHeader) unmarshal(body []byte) (int, error) {
	if len(body) < 1 {
		return 0, fmt.Errorf("not enough bytes")
	}

	h.Extended = (body[0] & 0x80) != 0
	h.FrameType = FrameType((body[0] >> 4) & 0x07)

	switch h.FrameType {
	case FrameTypeKey, FrameTypeInter, FrameTypeDisposable, FrameTypeGeneratedKey, FrameTypeInfo:
	default:
		return 0, fmt.Errorf("invalid frame type: %d", h.FrameType)
	}

	n := 1

	if h.Extended {
		if len(body) < 5 {
			return 0, fmt.Errorf("not enough bytes")
		}

		h.PacketType = PacketType(body[0] & 0x0F)
		if h.PacketType > PacketTypeMPEG2TSSequenceStart {
			return 0, fmt.Errorf("invalid packet type: %d", h.PacketType)
		}

		h.FourCC = FourCC(body[1])<<24 | FourCC(body[2])<<16 | FourCC(body[3])<<8 | FourCC(body[4])
		switch h.FourCC {
		case FourCCAV1, FourCCVP9, FourCCHEVC, FourCCAVC:
		default:
			return 0, fmt.Errorf("unsupported fourCC: %v", h.FourCC)
		}

		n = 5
	} else {
		h.Codec = VideoCodec(body[0] & 0x0F)

		if h.Codec == VideoCodecAVC {
			if len(body) < 2 {
				return 0, fmt.Errorf("not enough bytes")
			}

			h.AVCPacketType = AVCPacketType(body[1])
			if h.AVCPacketType > AVCPacketTypeEndOfSequence {
				return 0, fmt.Errorf("invalid AVC packet type: %d", body[1])
			}

			n = 2
		}
	}

	if h.hasCompositionTime() {
		if len(body) < n+3 {
			return 0, fmt.Errorf("not enough bytes")
		}

		h.CompositionTime = int24(body[n:])
		n += 3
	}

	return n, nil
}

func (h VideoHeader) size() int {
	n := 1
	if h.Extended {
		n = 5
	} else if h.Codec == VideoCodecAVC {
		n = 2
	}
	if h.hasCompositionTime() {
		n += 3
	}
	return n
}

func (h VideoHeader) marshalTo(buf []byte) int {
	var n int

	if h.Extended {
		buf[0] = 0x80 | byte(h.FrameType&0x07)<<4 | byte(h.PacketType&0x0F)
		buf[1] = byte(h.FourCC >> 24)
		buf[2] = byte(h.FourCC >> 16)
		buf[3] = byte(h.FourCC >> 8)
		buf[4] = byte(h.FourCC)
		n = 5
	} else {
		buf[0] = byte(h.FrameType&0x07)<<4 | byte(h.Codec&0x0F)
		n = 1

		if h.Codec == VideoCodecAVC {
			buf[1] = byte(h.AVCPacketType)
			n = 2
		}
	}

	if h.hasCompositionTime() {
		putInt24(buf[n:], h.CompositionTime)
		n += 3
	}

	return n
}
