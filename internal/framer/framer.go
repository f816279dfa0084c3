// Package framer splits a raw serial byte stream into lines.
//
// Either '\n' or '\r' terminates a line. A terminator seen while the buffer
// is empty is ignored, so "\r\n" yields a single line and blank lines yield
// nothing. Completed lines are returned trimmed of surrounding whitespace.
// A trailing fragment without a terminator is never emitted.
package framer

import "strings"

// Framer accumulates the line currently being assembled.
// It is not safe for concurrent use.
type Framer struct {
	buf []byte
}

func New() *Framer {
	return &Framer{buf: make([]byte, 0, 64)}
}

func isTerminator(b byte) bool {
	return b == '\n' || b == '\r'
}

// Feed consumes one byte. When it completes a line, the line is returned
// with ok set.
func (f *Framer) Feed(b byte) (line string, ok bool) {
	if !isTerminator(b) {
		f.buf = append(f.buf, b)
		return "", false
	}
	if len(f.buf) == 0 {
		return "", false
	}
	line = strings.TrimSpace(string(f.buf))
	f.buf = f.buf[:0]
	return line, true
}

// Write feeds a chunk and returns every line it completes, in order.
func (f *Framer) Write(p []byte) []string {
	var lines []string
	for _, b := range p {
		if line, ok := f.Feed(b); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// Pending reports how many bytes of an unterminated line are buffered.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset drops any partial line.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
