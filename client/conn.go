package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ixpkit/ixp/ninep"
)

// message is one framed 9P message with the envelope stripped.
type message struct {
	typ  uint8
	tag  uint16
	body []byte
}

// conn carries framed 9P messages over a network connection, one outstanding
// request at a time. Deadline-limited receives are resumable: a frame that
// was only partially received when the deadline passed is retained and
// completed by the next receive call.
type conn struct {
	rwc     net.Conn
	msize   uint32
	nextTag uint16

	frame   []byte
	scratch []byte
}

func newConn(rwc net.Conn, msize uint32) *conn {
	return &conn{
		rwc:     rwc,
		msize:   msize,
		scratch: make([]byte, 4096),
	}
}

func (c *conn) close() error {
	if c.rwc == nil {
		return nil
	}
	err := c.rwc.Close()
	c.rwc = nil
	if err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// tag returns the next request tag.
func (c *conn) tag() uint16 {
	c.nextTag++
	if c.nextTag == ninep.NoTag {
		c.nextTag = 0
	}
	return c.nextTag
}

// send writes one framed message. The body parts are concatenated to form
// the payload.
func (c *conn) send(typ uint8, tag uint16, body ...[]byte) error {
	if c.rwc == nil {
		return ErrNotConnected
	}
	size := ninep.HeaderSize
	for _, part := range body {
		size += len(part)
	}
	if uint32(size) > c.msize {
		return fmt.Errorf("%w: message size %d exceeds negotiated %d", ErrBadResponse, size, c.msize)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	buf = append(buf, typ)
	buf = binary.LittleEndian.AppendUint16(buf, tag)
	for _, part := range body {
		buf = append(buf, part...)
	}
	if _, err := c.rwc.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// extract returns a complete message from the accumulated inbound bytes, if
// one is present.
func (c *conn) extract() (message, bool, error) {
	if len(c.frame) < 4 {
		return message{}, false, nil
	}
	size := int(binary.LittleEndian.Uint32(c.frame))
	if size < ninep.HeaderSize || uint32(size) > c.msize {
		return message{}, false, fmt.Errorf("%w: frame size %d", ErrBadResponse, size)
	}
	if len(c.frame) < size {
		return message{}, false, nil
	}
	m := message{
		typ:  c.frame[4],
		tag:  binary.LittleEndian.Uint16(c.frame[5:7]),
		body: append([]byte(nil), c.frame[ninep.HeaderSize:size]...),
	}
	rest := len(c.frame) - size
	copy(c.frame, c.frame[size:])
	c.frame = c.frame[:rest]
	return m, true, nil
}

// recv reads one message. A positive timeout bounds the wait: if the
// deadline passes before a whole frame has arrived, recv returns an error
// wrapping os.ErrDeadlineExceeded and keeps any partially received bytes so
// that a later call picks up where this one stopped.
func (c *conn) recv(timeout time.Duration) (message, error) {
	if c.rwc == nil {
		return message{}, ErrNotConnected
	}
	if timeout > 0 {
		if err := c.rwc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return message{}, fmt.Errorf("set read deadline: %w", err)
		}
		defer func() { _ = c.rwc.SetReadDeadline(time.Time{}) }()
	}
	for {
		m, ok, err := c.extract()
		if err != nil {
			return message{}, err
		}
		if ok {
			return m, nil
		}
		n, err := c.rwc.Read(c.scratch)
		if n > 0 {
			c.frame = append(c.frame, c.scratch[:n]...)
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return message{}, fmt.Errorf("read: %w", err)
			}
			return message{}, fmt.Errorf("read message: %w", err)
		}
	}
}

// rpc performs one synchronous request/response exchange.
func (c *conn) rpc(typ uint8, tag uint16, body ...[]byte) ([]byte, error) {
	if err := c.send(typ, tag, body...); err != nil {
		return nil, err
	}
	m, err := c.recv(0)
	if err != nil {
		return nil, err
	}
	return checkReply(m, tag, typ+1)
}

// checkReply validates that a received message answers the request with the
// given tag, converting Rerror responses into RemoteError.
func checkReply(m message, tag uint16, want uint8) ([]byte, error) {
	if m.tag != tag {
		return nil, fmt.Errorf("%w: tag %d, expected %d", ErrBadResponse, m.tag, tag)
	}
	if m.typ == ninep.Rerror {
		fr := ninep.NewReader(m.body)
		msg := fr.String()
		if !fr.Ok() {
			return nil, fmt.Errorf("%w: short Rerror", ErrBadResponse)
		}
		return nil, &RemoteError{Msg: msg}
	}
	if m.typ != want {
		return nil, fmt.Errorf("%w: message type %d, expected %d", ErrBadResponse, m.typ, want)
	}
	return m.body, nil
}
