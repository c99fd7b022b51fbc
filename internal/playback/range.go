package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range within a file.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a Range header against a file of the given size.
// A nil range with nil error means the whole file should be sent.
// Only the first range of a multi-range request is honoured. A range whose
// end precedes its start is malformed rather than unsatisfiable.
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	spec, _, _ = strings.Cut(spec, ",")
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	if first == "" {
		return suffixRange(last, size)
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrInvalidRange
	}
	end := size - 1
	if last != "" {
		if end, err = strconv.ParseInt(last, 10, 64); err != nil || end < start {
			return nil, ErrInvalidRange
		}
	}
	if start >= size {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: start, End: min(end, size-1)}, nil
}

// suffixRange handles "bytes=-N", the last N bytes.
func suffixRange(n string, size int64) (*Range, error) {
	length, err := strconv.ParseInt(n, 10, 64)
	if err != nil || length <= 0 {
		return nil, ErrInvalidRange
	}
	if size == 0 {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: max(size-length, 0), End: size - 1}, nil
}
