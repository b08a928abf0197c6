package client

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/ixpkit/ixp/log"
	"github.com/ixpkit/ixp/ninep"
)

// Fid is an open file on the server. It tracks the read/write offset the
// way os.File does, so consecutive reads walk through the file. A Fid is
// owned by exactly one caller and must be closed exactly once; Close is
// idempotent so defensive double-closing is harmless.
type Fid struct {
	c      *Client
	fid    uint32
	qid    ninep.Qid
	path   string
	mode   uint8
	iounit uint32
	offset uint64
	closed bool

	// pending is set while a read request is in flight whose response has
	// not arrived yet, which happens when a deadline-limited read runs out
	// of time. The next read resumes waiting instead of sending again.
	pending    bool
	pendingTag uint16
}

// IOUnit returns the maximum number of bytes the server guarantees to
// transfer in a single read or write.
func (f *Fid) IOUnit() uint32 {
	return f.iounit
}

// Qid returns the server's unique identifier for the file.
func (f *Fid) Qid() ninep.Qid {
	return f.qid
}

// Name returns the path the fid was opened with.
func (f *Fid) Name() string {
	return f.path
}

// Read reads up to len(p) bytes from the current offset. It blocks until
// the server responds. At end of file it returns 0, io.EOF.
func (f *Fid) Read(p []byte) (int, error) {
	return f.ReadDeadline(p, 0)
}

// ReadDeadline is Read with a bounded wait. When timeout is positive and no
// response arrives in time, it returns an error wrapping
// os.ErrDeadlineExceeded. The request stays in flight: the next
// ReadDeadline or Read call on this fid resumes waiting for the same
// response rather than issuing a new one, so no data is lost by timing out.
func (f *Fid) ReadDeadline(p []byte, timeout time.Duration) (int, error) {
	if f.closed {
		return 0, opError("read", f.path, fs.ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	count := uint32(len(p))
	if count > f.iounit {
		count = f.iounit
	}

	if !f.pending {
		tag := f.c.conn.tag()
		body := ninep.AppendUint32(nil, f.fid)
		body = ninep.AppendUint64(body, f.offset)
		body = ninep.AppendUint32(body, count)
		if err := f.c.conn.send(ninep.Tread, tag, body); err != nil {
			return 0, opError("read", f.path, err)
		}
		f.pending = true
		f.pendingTag = tag
	}

	m, err := f.c.conn.recv(timeout)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// The request remains in flight, resumable by the next call.
			return 0, opError("read", f.path, err)
		}
		f.pending = false
		return 0, opError("read", f.path, err)
	}
	f.pending = false

	resp, err := checkReply(m, f.pendingTag, ninep.Rread)
	if err != nil {
		return 0, opError("read", f.path, err)
	}
	r := ninep.NewReader(resp)
	n := int(r.Uint32())
	data := r.Bytes(n)
	if !r.Ok() || n > len(p) {
		return 0, opError("read", f.path, fmt.Errorf("%w: short Rread", ErrBadResponse))
	}
	if n == 0 {
		return 0, io.EOF
	}
	copy(p, data)
	f.offset += uint64(n)
	return n, nil
}

// Write writes all of p at the current offset, issuing as many write
// messages as the iounit requires. Short writes are resumed; a server
// claiming to have written more than was sent is a protocol violation.
func (f *Fid) Write(p []byte) (int, error) {
	if f.closed {
		return 0, opError("write", f.path, fs.ErrClosed)
	}
	var written int
	for written < len(p) {
		n, err := f.writeChunk(p[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, opError("write", f.path, io.ErrShortWrite)
		}
		written += n
	}
	return written, nil
}

func (f *Fid) writeChunk(p []byte) (int, error) {
	count := uint32(len(p))
	if count > f.iounit {
		count = f.iounit
	}
	body := ninep.AppendUint32(nil, f.fid)
	body = ninep.AppendUint64(body, f.offset)
	body = ninep.AppendUint32(body, count)
	resp, err := f.c.conn.rpc(ninep.Twrite, f.c.conn.tag(), body, p[:count])
	if err != nil {
		return 0, opError("write", f.path, err)
	}
	r := ninep.NewReader(resp)
	n := int(r.Uint32())
	if !r.Ok() || n > int(count) {
		return 0, opError("write", f.path, fmt.Errorf("%w: bad Rwrite count", ErrBadResponse))
	}
	f.offset += uint64(n)
	return n, nil
}

// Close clunks the fid. If a deadline-limited read is still in flight, the
// request is flushed first so the handle is released deterministically.
// Close is idempotent.
func (f *Fid) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.pending {
		f.flushPending()
	}
	if err := f.c.clunk(f.fid); err != nil {
		return opError("close", f.path, err)
	}
	f.c.Log().Debug("closed", log.KeyPath, f.path, log.KeyFid, f.fid)
	return nil
}

// flushPending cancels the in-flight read and drains its response so the
// connection is clean for the clunk that follows. Best effort: a broken
// connection fails the clunk anyway.
func (f *Fid) flushPending() {
	oldtag := f.pendingTag
	f.pending = false
	flushTag := f.c.conn.tag()
	body := ninep.AppendUint16(nil, oldtag)
	if err := f.c.conn.send(ninep.Tflush, flushTag, body); err != nil {
		return
	}
	// The flushed response may still arrive before the Rflush; discard it.
	for i := 0; i < 2; i++ {
		m, err := f.c.conn.recv(0)
		if err != nil {
			return
		}
		if m.tag == flushTag {
			return
		}
		if m.tag != oldtag {
			return
		}
	}
}
