// Package chunk contains the RTMP chunk header records.
package chunk

import (
	"errors"
)

// ErrBufferTooSmall is returned when a record does not fit into the output buffer.
var ErrBufferTooSmall = errors.New("buffer too small")

// Record is a fixed-size binary record that is filled across
// possibly fragmented reads.
type Record struct {
	buf []byte
	n   int
}

// NewRecord allocates a Record of the given size.
func NewRecord(size int) *Record {
	r := &Record{}
	r.Init(size)
	return r
}

// Init (re)initializes the record with the given size.
func (r *Record) Init(size int) {
	if cap(r.buf) >= size {
		r.buf = r.buf[:size]
	} else {
		r.buf = make([]byte, size)
	}
	r.n = 0
}

// Feed copies up to the number of missing bytes from p and returns
// the number of bytes consumed.
func (r *Record) Feed(p []byte) int {
	n := copy(r.buf[r.n:], p)
	r.n += n
	return n
}

// IsParsed returns whether the record has been entirely filled.
func (r *Record) IsParsed() bool {
	return r.n == len(r.buf)
}

// Reset empties the record, keeping its size.
func (r *Record) Reset() {
	r.n = 0
}

// Size returns the size of the record.
func (r *Record) Size() int {
	return len(r.buf)
}

// Len returns the number of bytes filled so far.
func (r *Record) Len() int {
	return r.n
}

// Bytes returns the filled part of the record.
func (r *Record) Bytes() []byte {
	return r.buf[:r.n]
}
