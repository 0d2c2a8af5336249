package amf0

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var cases = []struct {
	name string
	enc  []byte
	dec  Data
}{
	{
		"connect",
		[]byte{
			0x02, 0x00, 0x07, 'c', 'o', 'n', 'n', 'e', 'c', 't',
			0x00, 0x3f, 0xf0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0x03, 0x00, 0x03, 'a', 'p', 'p', 0x02, 0x00, 0x04, 'l', 'i', 'v', 'e',
			0x00, 0x00, 0x09,
			0x05,
		},
		Data{
			"connect",
			float64(1),
			Object{{Key: "app", Value: "live"}},
			nil,
		},
	},
	{
		"metadata",
		[]byte{
			0x02, 0x00, 0x0a, 'o', 'n', 'M', 'e', 't', 'a', 'D', 'a', 't', 'a',
			0x08, 0x00, 0x00, 0x00, 0x01,
			0x00, 0x08, 'd', 'u', 'r', 'a', 't', 'i', 'o', 'n',
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x09,
		},
		Data{
			"onMetaData",
			ECMAArray{{Key: "duration", Value: float64(0)}},
		},
	},
	{
		"strict array",
		[]byte{
			0x0a, 0x00, 0x00, 0x00, 0x02,
			0x01, 0x01,
			0x06,
		},
		Data{
			StrictArray{true, Undefined{}},
		},
	},
}

func TestUnmarshal(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			dec, err := Unmarshal(ca.enc)
			require.NoError(t, err)
			require.Equal(t, ca.dec, dec)
		})
	}
}

func TestMarshal(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			enc, err := ca.dec.Marshal()
			require.NoError(t, err)
			require.Equal(t, ca.enc, enc)
		})
	}
}

func TestLongString(t *testing.T) {
	s := strings.Repeat("a", 70000)

	enc, err := Data{s}.Marshal()
	require.NoError(t, err)
	require.Equal(t, byte(markerLongString), enc[0])
	require.Equal(t, 5+70000, len(enc))

	dec, err := Unmarshal(enc)
	require.NoError(t, err)
	require.Equal(t, Data{s}, dec)
}

func TestDate(t *testing.T) {
	d := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

	enc, err := Data{d}.Marshal()
	require.NoError(t, err)
	require.Equal(t, 11, len(enc))

	dec, err := Unmarshal(enc)
	require.NoError(t, err)
	require.Len(t, dec, 1)
	require.True(t, d.Equal(dec[0].(time.Time)))
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		enc  []byte
		err  string
	}{
		{"empty number", []byte{0x00, 0x01}, "buffer is too short"},
		{"truncated string", []byte{0x02, 0x00, 0x05, 'a'}, "buffer is too short"},
		{"missing object end", []byte{0x03, 0x00, 0x00, 0x05}, "object end not found"},
		{"huge strict array", []byte{0x0a, 0xff, 0xff, 0xff, 0xff}, "buffer is too short"},
		{"unsupported marker", []byte{0x11}, "unsupported marker 0x11"},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, err := Unmarshal(ca.enc)
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestUnmarshalPrefix(t *testing.T) {
	dec := UnmarshalPrefix([]byte{
		0x02, 0x00, 0x01, 'a',
		0x01, 0x01,
		0x02, 0x00, 0x05, 'a',
	})
	require.Equal(t, Data{"a", true}, dec)

	require.Nil(t, UnmarshalPrefix([]byte{0x11}))
}

func TestMarshalUnsupported(t *testing.T) {
	_, err := Data{int(1)}.Marshal()
	require.EqualError(t, err, "unsupported data type: int")

	require.False(t, IsValue(int(1)))
	require.True(t, IsValue(ECMAArray{}))
}

func TestObjectGet(t *testing.T) {
	o := Object{
		{Key: "app", Value: "live"},
		{Key: "objectEncoding", Value: float64(3)},
	}

	v, ok := o.GetString("app")
	require.True(t, ok)
	require.Equal(t, "live", v)

	_, ok = o.GetString("objectEncoding")
	require.False(t, ok)

	f, ok := o.GetFloat64("objectEncoding")
	require.True(t, ok)
	require.Equal(t, float64(3), f)

	_, ok = o.Get("missing")
	require.False(t, ok)

	o2, ok := AsObject(ECMAArray(o))
	require.True(t, ok)
	require.Equal(t, o, o2)

	_, ok = AsObject("str")
	require.False(t, ok)
}
