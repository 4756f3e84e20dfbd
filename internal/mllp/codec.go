// Package mllp implements the Minimal Lower Layer Protocol framing used to
// carry HL7 v2 text over TCP: <SB> payload <EB><CR>.
package mllp

import "fmt"

const (
	startBlock = 0x0B // <SB>
	endBlock   = 0x1C // <EB>
	carriageReturn = 0x0D // <CR>

	// DefaultMaxBuffer is the soft limit recommended by the spec: a
	// connection that accumulates this many bytes without a closing
	// <EB> is considered abusive or desynchronized and is aborted.
	DefaultMaxBuffer = 1 << 20 // 1 MiB
)

// FramingError reports a malformed or over-long MLLP byte stream.
type FramingError struct {
	Reason    string
	Buffered  int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("mllp: %s (buffered=%d bytes)", e.Reason, e.Buffered)
}

// Decoder accumulates bytes from a connection and extracts complete MLLP
// frames. It is not safe for concurrent use — each connection owns one.
type Decoder struct {
	buf      []byte
	maxBytes int
}

// NewDecoder returns a Decoder that aborts once more than maxBytes have
// accumulated without a terminating <EB>. maxBytes <= 0 selects
// DefaultMaxBuffer.
func NewDecoder(maxBytes int) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBuffer
	}
	return &Decoder{maxBytes: maxBytes}
}

// Feed appends newly read bytes and returns every complete frame payload
// they produced, in order. Bytes preceding the first <SB> are discarded.
// The trailing <CR> after <EB> is consumed when present but is not
// required to close a frame.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf = append(d.buf, chunk...)

	// Rule (1): bytes before the first <SB> are discarded, even across
	// reads that never complete a frame.
	if start := indexByte(d.buf, startBlock); start == -1 {
		d.buf = nil
	} else if start > 0 {
		d.buf = d.buf[start:]
	}

	var frames [][]byte
	for {
		frame, consumed, ok := d.extractOne()
		if !ok {
			break
		}
		d.buf = d.buf[consumed:]
		frames = append(frames, frame)
		if start := indexByte(d.buf, startBlock); start == -1 {
			d.buf = nil
		} else if start > 0 {
			d.buf = d.buf[start:]
		}
	}

	if len(d.buf) > d.maxBytes {
		reason := "frame buffer exceeded soft limit without a closing <EB>"
		buffered := len(d.buf)
		d.buf = nil
		return frames, &FramingError{Reason: reason, Buffered: buffered}
	}
	return frames, nil
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}

// extractOne pulls the first complete frame out of d.buf, if any, assuming
// d.buf[0] is already <SB> (Feed maintains that invariant). It returns the
// payload, the number of leading bytes of d.buf it consumed, and whether a
// frame was actually found.
func (d *Decoder) extractOne() (frame []byte, consumed int, ok bool) {
	if len(d.buf) == 0 || d.buf[0] != startBlock {
		return nil, 0, false
	}

	end := -1
	for i := 1; i < len(d.buf); i++ {
		if d.buf[i] == endBlock {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, 0, false
	}

	payload := make([]byte, end-1)
	copy(payload, d.buf[1:end])

	next := end + 1
	if next < len(d.buf) && d.buf[next] == carriageReturn {
		next++
	}
	return payload, next, true
}

// Encode wraps payload in the <SB> ... <EB><CR> envelope.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, startBlock)
	out = append(out, payload...)
	out = append(out, endBlock, carriageReturn)
	return out
}
