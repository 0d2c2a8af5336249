package amf0

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Marshal encodes AMF0 data.
func (data Data) Marshal() ([]byte, error) {
	n, err := data.MarshalSize()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	data.marshalTo(buf)
	return buf, nil
}

// MarshalSize returns the size needed to encode data in AMF0.
func (data Data) MarshalSize() (int, error) {
	n := 0

	for _, item := range data {
		in, err := marshalSizeItem(item)
		if err != nil {
			return 0, err
		}
		n += in
	}

	return n, nil
}

func (data Data) marshalTo(buf []byte) int {
	n := 0
	for _, item := range data {
		n += marshalItem(item, buf[n:])
	}
	return n
}

func stringSize(s string) int {
	if len(s) > math.MaxUint16 {
		return 5 + len(s)
	}
	return 3 + len(s)
}

func entriesSize(o Object) (int, error) {
	n := 0

	for _, e := range o {
		if len(e.Key) > math.MaxUint16 {
			return 0, fmt.Errorf("key too long")
		}

		en, err := marshalSizeItem(e.Value)
		if err != nil {
			return 0, err
		}

		n += 2 + len(e.Key) + en
	}

	return n + 3, nil
}

func marshalSizeItem(item interface{}) (int, error) {
	switch item := item.(type) {
	case float64:
		return 9, nil

	case bool:
		return 2, nil

	case string:
		return stringSize(item), nil

	case time.Time:
		return 11, nil

	case nil, Undefined:
		return 1, nil

	case Object:
		n, err := entriesSize(item)
		return 1 + n, err

	case ECMAArray:
		n, err := entriesSize(Object(item))
		return 5 + n, err

	case StrictArray:
		n := 5
		for _, v := range item {
			vn, err := marshalSizeItem(v)
			if err != nil {
				return 0, err
			}
			n += vn
		}
		return n, nil

	default:
		return 0, fmt.Errorf("unsupported data type: %T", item)
	}
}

func marshalEntries(o Object, buf []byte) int {
	n := 0

	for _, e := range o {
		binary.BigEndian.PutUint16(buf[n:], uint16(len(e.Key)))
		n += 2
		n += copy(buf[n:], e.Key)
		n += marshalItem(e.Value, buf[n:])
	}

	buf[n] = 0
	buf[n+1] = 0
	buf[n+2] = markerObjectEnd

	return n + 3
}

func marshalItem(item interface{}, buf []byte) int {
	switch item := item.(type) {
	case float64:
		buf[0] = markerNumber
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(item))
		return 9

	case bool:
		buf[0] = markerBoolean
		if item {
			buf[1] = 1
		} else {
			buf[1] = 0
		}
		return 2

	case string:
		if len(item) > math.MaxUint16 {
			buf[0] = markerLongString
			binary.BigEndian.PutUint32(buf[1:], uint32(len(item)))
			return 5 + copy(buf[5:], item)
		}
		buf[0] = markerString
		binary.BigEndian.PutUint16(buf[1:], uint16(len(item)))
		return 3 + copy(buf[3:], item)

	case time.Time:
		buf[0] = markerDate
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(float64(item.UnixMilli())))
		buf[9] = 0
		buf[10] = 0
		return 11

	case Undefined:
		buf[0] = markerUndefined
		return 1

	case Object:
		buf[0] = markerObject
		return 1 + marshalEntries(item, buf[1:])

	case ECMAArray:
		buf[0] = markerECMAArray
		binary.BigEndian.PutUint32(buf[1:], uint32(len(item)))
		return 5 + marshalEntries(Object(item), buf[5:])

	case StrictArray:
		buf[0] = markerStrictArray
		binary.BigEndian.PutUint32(buf[1:], uint32(len(item)))
		n := 5
		for _, v := range item {
			n += marshalItem(v, buf[n:])
		}
		return n

	default:
		buf[0] = markerNull
		return 1
	}
}
