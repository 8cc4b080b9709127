package internal

import (
	"io"
)

// RepeatReader repeats a byte pattern forever. The container reader
// drains it to top up variables whose on-disk payload is shorter than
// their declared size, so the remainder reads as the fill value.
type RepeatReader struct {
	pattern []byte
	next    int
}

func NewRepeatReader(pattern []byte) io.Reader {
	return &RepeatReader{pattern: pattern}
}

func (r *RepeatReader) Read(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		copied := copy(p, r.pattern[r.next:])
		r.next = (r.next + copied) % len(r.pattern)
		p = p[copied:]
	}
	return n, nil
}
