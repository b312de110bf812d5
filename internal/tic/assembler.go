// internal/tic/assembler.go
package tic

// Frame delimiters on the wire
const (
	STX byte = 0x02
	ETX byte = 0x03
)

// DefaultMaxFrameSize bounds a frame that never sees its end marker
const DefaultMaxFrameSize = 8192

// Assembler re-segments a raw byte stream into frame buffers. It is owned by a
// single reader and is not safe for concurrent use.
type Assembler struct {
	buf          []byte
	open         bool
	maxFrameSize int
}

// NewAssembler creates an assembler; maxFrameSize <= 0 selects DefaultMaxFrameSize
func NewAssembler(maxFrameSize int) *Assembler {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Assembler{
		buf:          make([]byte, 0, 512),
		maxFrameSize: maxFrameSize,
	}
}

// Feed consumes one chunk and returns the frames it closed, in stream order.
// Each returned frame excludes the byte immediately preceding its end marker.
func (a *Assembler) Feed(chunk []byte) [][]byte {
	stx, etx := -1, -1
	for i, b := range chunk {
		switch b {
		case STX:
			stx = i
		case ETX:
			etx = i
		}
	}

	var frames [][]byte

	if etx >= 0 {
		switch {
		case stx >= 0 && stx < etx:
			// start and end both in this chunk: the start opens the frame the end closes
			frames = append(frames, a.close(chunk[stx+1:etx], true))
			return frames
		case a.open:
			frames = append(frames, a.close(chunk[:etx], false))
		}
	}

	if stx >= 0 {
		a.buf = append(a.buf[:0], chunk[stx+1:]...)
		a.open = true
	} else if a.open {
		a.buf = append(a.buf, chunk...)
	}

	if a.open && len(a.buf) > a.maxFrameSize {
		a.Reset()
	}

	return frames
}

// Reset drops any in-progress frame
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.open = false
}

// Pending reports whether a frame is currently open
func (a *Assembler) Pending() bool {
	return a.open
}

func (a *Assembler) close(tail []byte, fresh bool) []byte {
	var frame []byte
	if fresh {
		frame = make([]byte, 0, len(tail))
	} else {
		frame = make([]byte, 0, len(a.buf)+len(tail))
		frame = append(frame, a.buf...)
	}
	frame = append(frame, tail...)
	if len(frame) > 0 {
		frame = frame[:len(frame)-1]
	}
	a.Reset()
	return frame
}
