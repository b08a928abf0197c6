// Package stream provides lazy readers over remote file handles: a
// line-oriented reader with a caller-driven timeout and resume protocol, and
// a directory reader that incrementally decodes status records from the
// binary directory stream.
//
// Each reader owns exactly one handle and its read-ahead buffer. Readers are
// not safe for concurrent use; a reader has a single caller that serializes
// calls itself. Closing a reader releases the buffer and closes the handle
// exactly once, no matter how the iteration ended.
package stream

import (
	"errors"
	"io"
	"time"
)

// File is the remote file handle surface the readers consume.
type File interface {
	io.ReadCloser
	// IOUnit returns the transport's preferred I/O chunk size for this
	// handle. The readers size their buffer to it.
	IOUnit() uint32
}

// DeadlineReader is the optional capability of a File whose reads can be
// bounded in time. A read that runs out of time must return an error
// wrapping os.ErrDeadlineExceeded, keep the request resumable, and lose no
// data; client.Fid implements this.
type DeadlineReader interface {
	ReadDeadline(p []byte, timeout time.Duration) (int, error)
}

// ErrTimeout is returned by LineReader.Next when a deadline-limited refill
// ran out of time and the extend callback declined to keep waiting. It is a
// control-flow signal rather than a failure: the reader stays usable and a
// later call resumes the same read.
var ErrTimeout = errors.New("timeout")

// defaultBufferSize is used when the transport does not report a chunk size.
const defaultBufferSize = 4096
