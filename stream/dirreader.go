package stream

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/ixpkit/ixp/ninep"
)

// DirReader produces the status records of a directory one call at a time,
// decoding them incrementally from the binary directory stream. The
// protocol's framing guarantees that each physical read returns only whole
// records, so decoding never waits for more data: a refill replaces the
// buffer contents wholesale and the decode cursor never spans two reads.
type DirReader struct {
	f      File
	buf    []byte
	pos    int // decode cursor
	end    int // end of the span produced by the last refill
	closed bool
	err    error
}

// NewDirReader returns a DirReader over the open handle f. The reader takes
// ownership of f and closes it when the reader is closed.
func NewDirReader(f File) *DirReader {
	size := int(f.IOUnit())
	if size <= 0 {
		size = defaultBufferSize
	}
	return &DirReader{f: f, buf: make([]byte, size)}
}

// Next returns the next entry of the directory, or io.EOF when the listing
// is exhausted. A framing violation in the stream is fatal for the
// iteration: the error is returned from this and every subsequent call.
func (r *DirReader) Next() (*ninep.FileInfo, error) {
	if r.closed {
		return nil, fmt.Errorf("next entry: %w", fs.ErrClosed)
	}
	if r.err != nil {
		return nil, r.err
	}

	if r.pos >= r.end {
		n, err := r.f.Read(r.buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("refill: %w", err)
		}
		if n == 0 {
			return nil, io.EOF
		}
		r.pos, r.end = 0, n
	}

	stat, n, err := ninep.UnpackStat(r.buf[r.pos:r.end])
	if err != nil {
		if errors.Is(err, ninep.ErrExhausted) {
			// The refill produced no decodable record.
			return nil, io.EOF
		}
		r.err = fmt.Errorf("decode directory entry: %w", err)
		return nil, r.err
	}
	r.pos += n
	return ninep.NewFileInfo(stat), nil
}

// Close releases the buffer and closes the handle. It is idempotent.
func (r *DirReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = nil
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close dir reader: %w", err)
	}
	return nil
}
