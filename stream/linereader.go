package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/ixpkit/ixp/log"
)

// ExtendFunc decides what happens when a deadline-limited refill runs out of
// time: a positive return value retries the same refill with that as the new
// timeout, anything else gives up and surfaces ErrTimeout.
type ExtendFunc func() time.Duration

// LineReader produces the newline-delimited lines of a remote file one call
// at a time, reading ahead at most one buffer. Lines are delivered in the
// order they appeared on the wire.
type LineReader struct {
	log.LoggerInjectable

	f      File
	buf    []byte
	pos    int // start of unconsumed data
	length int // unconsumed bytes at pos
	closed bool
}

// NewLineReader returns a LineReader over the open handle f. The reader
// takes ownership of f and closes it when the reader is closed.
func NewLineReader(f File) *LineReader {
	size := int(f.IOUnit())
	if size <= 0 {
		size = defaultBufferSize
	}
	return &LineReader{f: f, buf: make([]byte, size)}
}

// Next returns the next line with its trailing newline stripped. At the end
// of the file it returns io.EOF.
//
// A positive timeout bounds the wait when the buffer needs refilling. If no
// data arrives in time, extend is consulted: a positive return retries the
// same pending read with the new timeout; a nil extend or a non-positive
// return yields ErrTimeout. A timed-out reader remains valid, the next call
// resumes the same read.
//
// When the buffered data contains no newline, the remaining buffered bytes
// are returned as a line. A line longer than the buffer is therefore
// delivered in buffer-sized pieces rather than growing the buffer without
// bound.
func (r *LineReader) Next(timeout time.Duration, extend ExtendFunc) (string, error) {
	if r.closed {
		return "", fmt.Errorf("next line: %w", fs.ErrClosed)
	}

	if r.length == 0 {
		r.pos = 0
		n, err := r.refill(timeout, extend)
		if err != nil {
			return "", err
		}
		r.length = n
	}

	data := r.buf[r.pos : r.pos+r.length]
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line := string(data[:i])
		r.pos += i + 1
		r.length -= i + 1
		return line, nil
	}

	line := string(data)
	r.length = 0
	return line, nil
}

func (r *LineReader) refill(timeout time.Duration, extend ExtendFunc) (int, error) {
	for {
		var n int
		var err error
		if dr, ok := r.f.(DeadlineReader); ok && timeout > 0 {
			n, err = dr.ReadDeadline(r.buf, timeout)
		} else {
			n, err = r.f.Read(r.buf)
		}
		switch {
		case err == nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case errors.Is(err, io.EOF):
			return 0, io.EOF
		case errors.Is(err, os.ErrDeadlineExceeded):
			if extend != nil {
				if d := extend(); d > 0 {
					r.Log().Debug("read timed out, extending", log.KeyDuration, d)
					timeout = d
					continue
				}
			}
			return 0, ErrTimeout
		default:
			return 0, fmt.Errorf("refill: %w", err)
		}
	}
}

// Close releases the buffer and closes the handle. It is idempotent.
func (r *LineReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = nil
	r.length = 0
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close line reader: %w", err)
	}
	return nil
}
