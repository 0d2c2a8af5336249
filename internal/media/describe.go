package media

import (
	"bytes"
	"fmt"

	"github.com/abema/go-mp4"
	mch264 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	mch265 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

func describeAVC(avcc []byte) string {
	var conf mp4.AVCDecoderConfiguration
	conf.SetType(mp4.BoxTypeAvcC())
	_, err := mp4.Unmarshal(bytes.NewReader(avcc), uint64(len(avcc)), &conf, mp4.Context{})
	if err != nil || len(conf.SequenceParameterSets) == 0 {
		return "H264"
	}

	var sps mch264.SPS
	err = sps.Unmarshal(conf.SequenceParameterSets[0].NALUnit)
	if err != nil {
		return "H264"
	}

	return fmt.Sprintf("H264 %dx%d", sps.Width(), sps.Height())
}

func describeHEVC(hvcc []byte) string {
	var conf mp4.HvcC
	_, err := mp4.Unmarshal(bytes.NewReader(hvcc), uint64(len(hvcc)), &conf, mp4.Context{})
	if err != nil {
		return "H265"
	}

	for _, arr := range conf.NaluArrays {
		if arr.NaluType != byte(mch265.NALUType_SPS_NUT) || len(arr.Nalus) == 0 {
			continue
		}

		var sps mch265.SPS
		err = sps.Unmarshal(arr.Nalus[0].NALUnit)
		if err != nil {
			break
		}

		return fmt.Sprintf("H265 %dx%d", sps.Width(), sps.Height())
	}

	return "H265"
}

// Describe returns a description of the codec configured by a config frame.
// Parse failures of the configuration degrade to the bare codec name.
func Describe(f *Frame) (string, bool) {
	switch {
	case f.IsAACConfig():
		var asc mpeg4audio.AudioSpecificConfig
		err := asc.Unmarshal(f.Payload)
		if err != nil {
			return "MPEG-4 Audio", true
		}
		return fmt.Sprintf("MPEG-4 Audio %dHz", asc.SampleRate), true

	case f.IsVideoConfig() && !f.Video.Extended:
		return describeAVC(f.Payload), true

	case f.IsVideoConfig():
		switch f.Video.FourCC {
		case FourCCAVC:
			return describeAVC(f.Payload), true
		case FourCCHEVC:
			return describeHEVC(f.Payload), true
		case FourCCAV1:
			return "AV1", true
		case FourCCVP9:
			return "VP9", true
		}
	}

	return "", false
}
