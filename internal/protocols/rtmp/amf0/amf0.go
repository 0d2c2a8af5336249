// Package amf0 contains an AMF0 decoder and encoder.
package amf0

import (
	"errors"
	"time"
)

const (
	markerNumber      = 0x00
	markerBoolean     = 0x01
	markerString      = 0x02
	markerObject      = 0x03
	markerNull        = 0x05
	markerUndefined   = 0x06
	markerECMAArray   = 0x08
	markerObjectEnd   = 0x09
	markerStrictArray = 0x0A
	markerDate        = 0x0B
	markerLongString  = 0x0C
	markerTypedObject = 0x10
)

var errBufferTooShort = errors.New("buffer is too short")

// Undefined is the AMF0 undefined value.
type Undefined struct{}

// StrictArray is an AMF0 Strict Array.
type StrictArray []interface{}

// Data is a list of AMF0 values.
//
// Values are restricted to this set of Go types:
// nil, bool, float64, string, time.Time, Undefined, Object, ECMAArray, StrictArray.
type Data []interface{}

// IsValue checks whether v belongs to the AMF0 value set.
func IsValue(v interface{}) bool {
	switch v.(type) {
	case nil, bool, float64, string, time.Time, Undefined, Object, ECMAArray, StrictArray:
		return true
	}
	return false
}
