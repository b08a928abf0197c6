// Package ixp provides client access to 9P file services: one-shot reads,
// writes and stats, plus streaming iteration over lines and directory
// entries of remote files.
//
//	c, err := ixp.NewClient(ixp.Config{Address: "unix!/tmp/ns.user.:0/wmii"})
//	if err != nil { ... }
//	if err := c.Connect(); err != nil { ... }
//	defer c.Close()
//
//	lines, err := c.Lines("/event")
//	if err != nil { ... }
//	defer lines.Close()
//	for {
//		line, err := lines.Next(0, nil)
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		...
//	}
package ixp

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ixpkit/ixp/client"
	"github.com/ixpkit/ixp/log"
	"github.com/ixpkit/ixp/ninep"
	"github.com/ixpkit/ixp/retry"
	"github.com/ixpkit/ixp/stream"
)

// readCeiling is how far a whole-buffer read grows its buffer beyond the
// handle's chunk size before giving up. Content past the ceiling is
// truncated; use Lines for files of unbounded size.
const readCeiling = 4096

// File is an open remote file handle.
type File interface {
	io.ReadWriteCloser
	IOUnit() uint32
	Name() string
}

// session is the part of the transport client the facade consumes.
type session interface {
	Open(name string, mode uint8) (File, error)
	Create(name string, perm ninep.FileMode, mode uint8) (File, error)
	Remove(name string) error
	Stat(name string) (ninep.Stat, error)
	Close() error
}

// clientSession adapts client.Client to the session interface.
type clientSession struct {
	*client.Client
}

func (s clientSession) Open(name string, mode uint8) (File, error) {
	f, err := s.Client.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s clientSession) Create(name string, perm ninep.FileMode, mode uint8) (File, error) {
	f, err := s.Client.Create(name, perm, mode)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Client provides access to the files of one 9P service.
//
// A Client and the readers it hands out are not safe for concurrent use:
// one request is outstanding on the connection at a time and callers
// serialize access themselves.
type Client struct {
	log.LoggerInjectable

	config  Config
	session session
}

// NewClient validates the configuration and returns an unconnected client.
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{config: config}, nil
}

// Connect dials the service, negotiates the protocol and attaches to the
// service root. Calling Connect on a connected client does nothing.
func (c *Client) Connect() error {
	if c.session != nil {
		return nil
	}
	dial := func() (*client.Client, error) {
		cl, err := client.Dial(c.config.Address,
			client.WithUser(c.config.User),
			client.WithService(c.config.Service),
			client.WithMessageSize(c.config.MessageSize),
			client.WithDialTimeout(c.config.DialTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", c.config.Address, err)
		}
		return cl, nil
	}

	var cl *client.Client
	var err error
	if c.config.ConnectRetries > 0 {
		cl, err = retry.Get(context.Background(), dial,
			retry.MaxRetries(c.config.ConnectRetries),
			retry.Delay(c.config.RetryDelay),
		)
	} else {
		cl, err = dial()
	}
	if err != nil {
		return err
	}

	c.InjectLoggerTo(cl, log.KeyAddress, c.config.Address)
	c.session = clientSession{cl}
	return nil
}

// IsConnected returns true after a successful Connect and before Close.
func (c *Client) IsConnected() bool {
	return c.session != nil
}

// Close releases the connection. It is safe to call more than once.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", c.config.Address, err)
	}
	return nil
}

// String returns the address of the service.
func (c *Client) String() string {
	return c.config.Address
}

func (c *Client) fs() (session, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session, nil
}

// Open opens the named remote file. Mode is one of the ninep open modes.
// The caller owns the handle and must close it.
func (c *Client) Open(name string, mode uint8) (File, error) {
	s, err := c.fs()
	if err != nil {
		return nil, err
	}
	return s.Open(name, mode)
}

// ReadFile returns the contents of the named file. The buffer starts at the
// handle's chunk size and grows once to a fixed ceiling; content past the
// ceiling is truncated. Use Lines to iterate files of unbounded size.
func (c *Client) ReadFile(name string) ([]byte, error) {
	s, err := c.fs()
	if err != nil {
		return nil, err
	}
	f, err := s.Open(name, ninep.OREAD)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size := int(f.IOUnit())
	if size <= 0 || size > readCeiling {
		size = readCeiling
	}
	buf := make([]byte, size)
	ofs := 0
	for {
		if ofs == len(buf) {
			if len(buf) >= readCeiling {
				break
			}
			grown := make([]byte, readCeiling)
			copy(grown, buf)
			buf = grown
		}
		n, err := f.Read(buf[ofs:])
		ofs += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
	c.Log().Debug("read file", log.KeyPath, name, log.KeyBytes, ofs)
	return buf[:ofs], nil
}

// WriteFile writes data to the named file, which must exist.
func (c *Client) WriteFile(name string, data []byte) error {
	s, err := c.fs()
	if err != nil {
		return err
	}
	f, err := s.Open(name, ninep.OWRITE)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	c.Log().Debug("wrote file", log.KeyPath, name, log.KeyBytes, len(data))
	return nil
}

// Create creates the named file with the given permissions, writing the
// optional initial data to it unless the created file is a directory.
func (c *Client) Create(name string, perm ninep.FileMode, data []byte) error {
	s, err := c.fs()
	if err != nil {
		return err
	}
	f, err := s.Create(name, perm, ninep.OWRITE)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(data) > 0 && !perm.IsDir() {
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Remove removes the named file.
func (c *Client) Remove(name string) error {
	s, err := c.fs()
	if err != nil {
		return err
	}
	return s.Remove(name)
}

// Stat returns the status of the named file.
func (c *Client) Stat(name string) (*ninep.FileInfo, error) {
	s, err := c.fs()
	if err != nil {
		return nil, err
	}
	stat, err := s.Stat(name)
	if err != nil {
		return nil, err
	}
	return ninep.NewFileInfo(stat), nil
}

// Lines opens the named file and returns a line reader over it. The reader
// owns the handle; closing the reader closes the handle.
func (c *Client) Lines(name string) (*stream.LineReader, error) {
	s, err := c.fs()
	if err != nil {
		return nil, err
	}
	f, err := s.Open(name, ninep.OREAD)
	if err != nil {
		return nil, err
	}
	r := stream.NewLineReader(f)
	c.InjectLoggerTo(r, log.KeyPath, name)
	return r, nil
}

// Dir opens the named directory and returns a reader over its entries. The
// reader owns the handle; closing the reader closes the handle.
func (c *Client) Dir(name string) (*stream.DirReader, error) {
	s, err := c.fs()
	if err != nil {
		return nil, err
	}
	f, err := s.Open(name, ninep.OREAD)
	if err != nil {
		return nil, err
	}
	return stream.NewDirReader(f), nil
}

// ReadDir returns all entries of the named directory by draining a Dir
// reader.
func (c *Client) ReadDir(name string) ([]*ninep.FileInfo, error) {
	r, err := c.Dir(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []*ninep.FileInfo
	for {
		fi, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, fi)
	}
}
