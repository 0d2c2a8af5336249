package amf0

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Unmarshal decodes AMF0 data.
func Unmarshal(buf []byte) (Data, error) {
	var out Data

	for len(buf) != 0 {
		var item interface{}
		var err error
		item, buf, err = unmarshal(buf)
		if err != nil {
			return nil, err
		}

		out = append(out, item)
	}

	return out, nil
}

// UnmarshalPrefix decodes AMF0 values until the end of buf
// or until the first invalid value.
func UnmarshalPrefix(buf []byte) Data {
	var out Data

	for len(buf) != 0 {
		item, rest, err := unmarshal(buf)
		if err != nil {
			break
		}

		out = append(out, item)
		buf = rest
	}

	return out
}

func unmarshalString(buf []byte, lenSize int) (string, []byte, error) {
	if len(buf) < lenSize {
		return "", nil, errBufferTooShort
	}

	var le int
	if lenSize == 2 {
		le = int(binary.BigEndian.Uint16(buf))
	} else {
		le = int(binary.BigEndian.Uint32(buf))
	}
	buf = buf[lenSize:]

	if len(buf) < le {
		return "", nil, errBufferTooShort
	}

	return string(buf[:le]), buf[le:], nil
}

func unmarshalEntries(buf []byte) (Object, []byte, error) {
	out := Object{}

	for {
		var key string
		var err error
		key, buf, err = unmarshalString(buf, 2)
		if err != nil {
			return nil, nil, err
		}

		if key == "" {
			break
		}

		var value interface{}
		value, buf, err = unmarshal(buf)
		if err != nil {
			return nil, nil, err
		}

		out = append(out, ObjectEntry{Key: key, Value: value})
	}

	if len(buf) < 1 {
		return nil, nil, errBufferTooShort
	}

	if buf[0] != markerObjectEnd {
		return nil, nil, fmt.Errorf("object end not found")
	}

	return out, buf[1:], nil
}

func unmarshal(buf []byte) (interface{}, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, errBufferTooShort
	}

	marker := buf[0]
	buf = buf[1:]

	switch marker {
	case markerNumber:
		if len(buf) < 8 {
			return nil, nil, errBufferTooShort
		}
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), buf[8:], nil

	case markerBoolean:
		if len(buf) < 1 {
			return nil, nil, errBufferTooShort
		}
		return buf[0] != 0, buf[1:], nil

	case markerString:
		return unmarshalString(buf, 2)

	case markerLongString:
		return unmarshalString(buf, 4)

	case markerObject:
		return unmarshalEntries(buf)

	case markerTypedObject:
		// the class name is discarded
		_, buf, err := unmarshalString(buf, 2)
		if err != nil {
			return nil, nil, err
		}
		return unmarshalEntries(buf)

	case markerECMAArray:
		if len(buf) < 4 {
			return nil, nil, errBufferTooShort
		}
		o, buf, err := unmarshalEntries(buf[4:])
		if err != nil {
			return nil, nil, err
		}
		return ECMAArray(o), buf, nil

	case markerNull:
		return nil, buf, nil

	case markerUndefined:
		return Undefined{}, buf, nil

	case markerStrictArray:
		if len(buf) < 4 {
			return nil, nil, errBufferTooShort
		}

		count := binary.BigEndian.Uint32(buf)
		buf = buf[4:]

		// each item takes at least one byte
		if uint64(count) > uint64(len(buf)) {
			return nil, nil, errBufferTooShort
		}

		out := make(StrictArray, 0, count)

		for i := uint32(0); i < count; i++ {
			var value interface{}
			var err error
			value, buf, err = unmarshal(buf)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, value)
		}

		return out, buf, nil

	case markerDate:
		if len(buf) < 10 {
			return nil, nil, errBufferTooShort
		}
		ms := math.Float64frombits(binary.BigEndian.Uint64(buf))
		// the time zone field is reserved and ignored
		return time.UnixMilli(int64(ms)).UTC(), buf[10:], nil

	default:
		return nil, nil, fmt.Errorf("unsupported marker 0x%.2x", marker)
	}
}
