// Package reading validates framed lines as light-level readings.
package reading

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotAReading marks a line that is not an integer reading.
// Such lines (boot banners, partial reads) are expected and dropped.
var ErrNotAReading = errors.New("not a reading")

// Reading is a single light level reported by the sensor
type Reading struct {
	Value int32
}

// Parse trims line and parses it as a base-10 32-bit signed integer.
func Parse(line string) (Reading, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Reading{}, fmt.Errorf("%w: empty line", ErrNotAReading)
	}

	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %q: %v", ErrNotAReading, s, errors.Unwrap(err))
	}

	return Reading{Value: int32(v)}, nil
}

// IsIgnorable reports whether err only means the line should be dropped
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrNotAReading)
}

// Payload is the canonical decimal rendering published on the wire
func (r Reading) Payload() []byte {
	return strconv.AppendInt(nil, int64(r.Value), 10)
}

func (r Reading) String() string {
	return strconv.FormatInt(int64(r.Value), 10)
}
