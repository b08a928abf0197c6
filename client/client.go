// Package client implements a synchronous 9P2000 client. One request is
// outstanding on the connection at a time; concurrent multiplexing is
// deliberately out of scope.
package client

import (
	"fmt"
	"net"
	"path"
	"strings"
	"time"

	"github.com/ixpkit/ixp/log"
	"github.com/ixpkit/ixp/ninep"
)

// DefaultMessageSize is the message size suggested during protocol
// negotiation.
const DefaultMessageSize = 64 * 1024

// Options adjust how a client connects.
type Options struct {
	// User is the uname sent in the attach message.
	User string
	// Service is the aname sent in the attach message.
	Service string
	// MessageSize is the maximum message size suggested during version
	// negotiation. The server may lower it.
	MessageSize uint32
	// DialTimeout bounds the initial network dial. Zero means no limit.
	DialTimeout time.Duration
}

// Option is a functional option for Dial.
type Option func(*Options)

// WithUser sets the user name for the attach message.
func WithUser(user string) Option {
	return func(o *Options) { o.User = user }
}

// WithService sets the service name (aname) for the attach message.
func WithService(service string) Option {
	return func(o *Options) { o.Service = service }
}

// WithMessageSize sets the suggested maximum message size.
func WithMessageSize(size uint32) Option {
	return func(o *Options) { o.MessageSize = size }
}

// WithDialTimeout bounds the initial network dial.
func WithDialTimeout(d time.Duration) Option {
	return func(o *Options) { o.DialTimeout = d }
}

// Client is a connected 9P session. It is not safe for concurrent use;
// callers must serialize access themselves.
type Client struct {
	log.LoggerInjectable

	address string
	conn    *conn
	msize   uint32
	root    uint32
	nextFid uint32
}

// Dial connects to the service at the given bang-separated address string
// (see ParseAddress), negotiates the protocol and attaches to the service
// root.
func Dial(address string, opts ...Option) (*Client, error) {
	options := Options{
		User:        "nobody",
		MessageSize: DefaultMessageSize,
	}
	for _, opt := range opts {
		opt(&options)
	}

	network, dialAddr, err := ParseAddress(address)
	if err != nil {
		return nil, opError("dial", address, err)
	}

	dialer := net.Dialer{Timeout: options.DialTimeout}
	rwc, err := dialer.Dial(network, dialAddr)
	if err != nil {
		return nil, opError("dial", address, err)
	}

	c := &Client{
		address: address,
		conn:    newConn(rwc, options.MessageSize),
	}
	if err := c.setup(options); err != nil {
		_ = c.conn.close()
		return nil, opError("attach", address, err)
	}
	return c, nil
}

func (c *Client) setup(options Options) error {
	body := ninep.AppendUint32(nil, options.MessageSize)
	body = ninep.AppendString(body, ninep.Version)
	resp, err := c.conn.rpc(ninep.Tversion, ninep.NoTag, body)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	r := ninep.NewReader(resp)
	msize := r.Uint32()
	version := r.String()
	if !r.Ok() {
		return fmt.Errorf("version: %w: short Rversion", ErrBadResponse)
	}
	if version != ninep.Version {
		return fmt.Errorf("version: %w: server offered %q", ErrUnknownProtocol, version)
	}
	if msize > options.MessageSize || msize < ninep.IOHeaderSize {
		return fmt.Errorf("version: %w: server offered message size %d", ErrBadResponse, msize)
	}
	c.msize = msize
	c.conn.msize = msize

	rootFid := c.newFid()
	body = ninep.AppendUint32(nil, rootFid)
	body = ninep.AppendUint32(body, ninep.NoFid)
	body = ninep.AppendString(body, options.User)
	body = ninep.AppendString(body, options.Service)
	if _, err := c.conn.rpc(ninep.Tattach, c.conn.tag(), body); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	c.root = rootFid

	c.Log().Debug("session established",
		log.KeyAddress, c.address,
		log.KeyUser, options.User,
		log.KeyService, options.Service,
		"msize", msize)
	return nil
}

// String returns the address the client is connected to.
func (c *Client) String() string {
	return c.address
}

// Close clunks the root and closes the connection. It is safe to call more
// than once.
func (c *Client) Close() error {
	if c.conn == nil || c.conn.rwc == nil {
		return nil
	}
	_ = c.clunk(c.root)
	if err := c.conn.close(); err != nil {
		return opError("close", c.address, err)
	}
	c.Log().Debug("session closed", log.KeyAddress, c.address)
	return nil
}

func (c *Client) newFid() uint32 {
	fid := c.nextFid
	c.nextFid++
	if c.nextFid == ninep.NoFid {
		c.nextFid = 0
	}
	return fid
}

func splitPath(name string) []string {
	var elems []string
	for _, e := range strings.Split(name, "/") {
		if e != "" && e != "." {
			elems = append(elems, e)
		}
	}
	return elems
}

// walk clones the root fid and walks it to the named file. The returned fid
// is ready to be opened or must be clunked by the caller.
func (c *Client) walk(name string) (uint32, ninep.Qid, error) {
	if c.conn == nil || c.conn.rwc == nil {
		return 0, ninep.Qid{}, ErrNotConnected
	}
	elems := splitPath(name)
	newfid := c.newFid()
	from := c.root
	qid := ninep.Qid{}

	// A single walk message carries at most MaxWalkNames elements; longer
	// paths continue from the fid the previous message produced.
	for first := true; first || len(elems) > 0; first = false {
		batch := elems
		if len(batch) > ninep.MaxWalkNames {
			batch = batch[:ninep.MaxWalkNames]
		}
		elems = elems[len(batch):]

		body := ninep.AppendUint32(nil, from)
		body = ninep.AppendUint32(body, newfid)
		body = ninep.AppendUint16(body, uint16(len(batch)))
		for _, e := range batch {
			body = ninep.AppendString(body, e)
		}
		resp, err := c.conn.rpc(ninep.Twalk, c.conn.tag(), body)
		if err != nil {
			return 0, ninep.Qid{}, err
		}
		r := ninep.NewReader(resp)
		nqid := int(r.Uint16())
		qids := make([]ninep.Qid, 0, nqid)
		for i := 0; i < nqid; i++ {
			qids = append(qids, r.Qid())
		}
		if !r.Ok() {
			_ = c.clunkIfMoved(newfid, !first)
			return 0, ninep.Qid{}, fmt.Errorf("%w: short Rwalk", ErrBadResponse)
		}
		if nqid < len(batch) {
			_ = c.clunkIfMoved(newfid, !first)
			return 0, ninep.Qid{}, ErrNoSuchFile
		}
		if nqid > 0 {
			qid = qids[nqid-1]
		}
		from = newfid
	}
	return newfid, qid, nil
}

func (c *Client) clunkIfMoved(fid uint32, moved bool) error {
	if !moved {
		return nil
	}
	return c.clunk(fid)
}

func (c *Client) clunk(fid uint32) error {
	body := ninep.AppendUint32(nil, fid)
	if _, err := c.conn.rpc(ninep.Tclunk, c.conn.tag(), body); err != nil {
		return fmt.Errorf("clunk: %w", err)
	}
	return nil
}

func (c *Client) iounit(ropen uint32) uint32 {
	if ropen > 0 && ropen <= c.msize-ninep.IOHeaderSize {
		return ropen
	}
	return c.msize - ninep.IOHeaderSize
}

// Open walks to the named file and opens it with the given mode, returning a
// file handle. The caller owns the handle and must close it exactly once.
func (c *Client) Open(name string, mode uint8) (*Fid, error) {
	fid, _, err := c.walk(name)
	if err != nil {
		return nil, opError("open", name, err)
	}
	body := ninep.AppendUint32(nil, fid)
	body = append(body, mode)
	resp, err := c.conn.rpc(ninep.Topen, c.conn.tag(), body)
	if err != nil {
		_ = c.clunk(fid)
		return nil, opError("open", name, err)
	}
	r := ninep.NewReader(resp)
	qid := r.Qid()
	iounit := r.Uint32()
	if !r.Ok() {
		_ = c.clunk(fid)
		return nil, opError("open", name, fmt.Errorf("%w: short Ropen", ErrBadResponse))
	}
	c.Log().Debug("opened", log.KeyPath, name, log.KeyFid, fid, "iounit", c.iounit(iounit))
	return &Fid{
		c:      c,
		fid:    fid,
		qid:    qid,
		path:   name,
		mode:   mode,
		iounit: c.iounit(iounit),
	}, nil
}

// Create creates the named file with the given permissions and opens it with
// the given mode. The parent directory must exist.
func (c *Client) Create(name string, perm ninep.FileMode, mode uint8) (*Fid, error) {
	dir, base := path.Split(name)
	if base == "" {
		return nil, opError("create", name, ErrInvalidAddress)
	}
	fid, _, err := c.walk(dir)
	if err != nil {
		return nil, opError("create", name, err)
	}
	body := ninep.AppendUint32(nil, fid)
	body = ninep.AppendString(body, base)
	body = ninep.AppendUint32(body, uint32(perm))
	body = append(body, mode)
	resp, err := c.conn.rpc(ninep.Tcreate, c.conn.tag(), body)
	if err != nil {
		_ = c.clunk(fid)
		return nil, opError("create", name, err)
	}
	r := ninep.NewReader(resp)
	qid := r.Qid()
	iounit := r.Uint32()
	if !r.Ok() {
		_ = c.clunk(fid)
		return nil, opError("create", name, fmt.Errorf("%w: short Rcreate", ErrBadResponse))
	}
	c.Log().Debug("created", log.KeyPath, name, log.KeyFid, fid)
	return &Fid{
		c:      c,
		fid:    fid,
		qid:    qid,
		path:   name,
		mode:   mode,
		iounit: c.iounit(iounit),
	}, nil
}

// Remove removes the named file. The server clunks the fid whether or not
// the removal succeeds.
func (c *Client) Remove(name string) error {
	fid, _, err := c.walk(name)
	if err != nil {
		return opError("remove", name, err)
	}
	body := ninep.AppendUint32(nil, fid)
	if _, err := c.conn.rpc(ninep.Tremove, c.conn.tag(), body); err != nil {
		return opError("remove", name, err)
	}
	return nil
}

// Stat returns the status record of the named file.
func (c *Client) Stat(name string) (ninep.Stat, error) {
	fid, _, err := c.walk(name)
	if err != nil {
		return ninep.Stat{}, opError("stat", name, err)
	}
	defer func() { _ = c.clunk(fid) }()

	body := ninep.AppendUint32(nil, fid)
	resp, err := c.conn.rpc(ninep.Tstat, c.conn.tag(), body)
	if err != nil {
		return ninep.Stat{}, opError("stat", name, err)
	}
	// Rstat wraps the record in an extra length field.
	if len(resp) < 2 {
		return ninep.Stat{}, opError("stat", name, fmt.Errorf("%w: short Rstat", ErrBadResponse))
	}
	stat, _, err := ninep.UnpackStat(resp[2:])
	if err != nil {
		return ninep.Stat{}, opError("stat", name, err)
	}
	return stat, nil
}
