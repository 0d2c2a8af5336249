package chunk

// SizeState is the state of a SizedRecord.
type SizeState int

// states.
const (
	Unsized SizeState = iota
	Sized
	Complete
)

// String implements fmt.Stringer.
func (s SizeState) String() string {
	switch s {
	case Unsized:
		return "unsized"
	case Sized:
		return "sized"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// SizeFunc computes the total size of a record from its leading bytes.
// It returns zero when more bytes are needed.
type SizeFunc func(head []byte) int

// SizedRecord is a record whose total size is resolved from its first bytes.
// It goes through Unsized, Sized(n) and Complete; once Sized, the size never changes.
type SizedRecord struct {
	sizeFunc SizeFunc
	maxSize  int

	state SizeState
	buf   []byte
	size  int
}

// Init initializes the record.
func (r *SizedRecord) Init(sizeFunc SizeFunc, maxSize int) {
	r.sizeFunc = sizeFunc
	r.maxSize = maxSize
	r.buf = make([]byte, 0, maxSize)
	r.Reset()
}

// Reset returns the record to the Unsized state.
func (r *SizedRecord) Reset() {
	r.state = Unsized
	r.buf = r.buf[:0]
	r.size = 0
}

// State returns the state.
func (r *SizedRecord) State() SizeState {
	return r.state
}

// Size returns the resolved size, or zero if still unsized.
func (r *SizedRecord) Size() int {
	return r.size
}

// IsParsed returns whether the record is complete.
func (r *SizedRecord) IsParsed() bool {
	return r.state == Complete
}

// Bytes returns the filled part of the record.
func (r *SizedRecord) Bytes() []byte {
	return r.buf
}

// Feed consumes bytes from p and returns the number of bytes consumed.
func (r *SizedRecord) Feed(p []byte) int {
	n := 0

	for r.state == Unsized && n < len(p) && len(r.buf) < r.maxSize {
		r.buf = append(r.buf, p[n])
		n++

		if size := r.sizeFunc(r.buf); size > 0 {
			r.size = size
			r.state = Sized
		}
	}

	if r.state == Sized {
		missing := r.size - len(r.buf)
		if missing > len(p)-n {
			missing = len(p) - n
		}

		r.buf = append(r.buf, p[n:n+missing]...)
		n += missing

		if len(r.buf) == r.size {
			r.state = Complete
		}
	}

	return n
}
