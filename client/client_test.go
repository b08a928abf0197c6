package client_test

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ixpkit/ixp/client"
	"github.com/ixpkit/ixp/ninep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// srvFile is one file served by the test server.
type srvFile struct {
	data   []byte
	mode   ninep.FileMode
	denied bool          // open and create are refused
	delay  time.Duration // reads stall this long before responding
}

// testServer is a minimal sequential 9P2000 server backed by an in-memory
// tree, just enough protocol to exercise the client.
type testServer struct {
	t  *testing.T
	ln net.Listener

	mu    sync.Mutex
	files map[string]*srvFile
	fids  map[uint32]*srvFid
}

type srvFid struct {
	path  string
	image []byte // directory listing snapshot, built at open
}

func newTestServer(t *testing.T, files map[string]*srvFile) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &testServer{
		t:     t,
		ln:    ln,
		files: files,
		fids:  make(map[uint32]*srvFid),
	}
	t.Cleanup(func() { _ = ln.Close() })
	go s.acceptLoop()
	return s
}

func (s *testServer) addr() string { return s.ln.Addr().String() }

func (s *testServer) file(path string) *srvFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[path]
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *testServer) serve(conn net.Conn) {
	defer conn.Close()
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		size := binary.LittleEndian.Uint32(hdr[:])
		if size < ninep.HeaderSize {
			return
		}
		rest := make([]byte, size-4)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		typ := rest[0]
		tag := binary.LittleEndian.Uint16(rest[1:3])
		s.handle(conn, typ, tag, rest[3:])
	}
}

func (s *testServer) reply(w io.Writer, typ uint8, tag uint16, body []byte) {
	buf := ninep.AppendUint32(nil, uint32(ninep.HeaderSize+len(body)))
	buf = append(buf, typ)
	buf = ninep.AppendUint16(buf, tag)
	buf = append(buf, body...)
	_, _ = w.Write(buf)
}

func (s *testServer) rerror(w io.Writer, tag uint16, msg string) {
	s.reply(w, ninep.Rerror, tag, ninep.AppendString(nil, msg))
}

func (s *testServer) qid(path string, f *srvFile) ninep.Qid {
	q := ninep.Qid{Path: uint64(len(path)) + 1}
	if f.mode.IsDir() {
		q.Type = uint8(f.mode >> 24)
	}
	return q
}

func (s *testServer) stat(path string, f *srvFile) ninep.Stat {
	name := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		name = path[i+1:]
	}
	if name == "" {
		name = "/"
	}
	return ninep.Stat{
		Qid:    s.qid(path, f),
		Mode:   f.mode,
		Mtime:  1136239445,
		Length: uint64(len(f.data)),
		Name:   name,
		UID:    "glenda",
		GID:    "glenda",
		MUID:   "glenda",
	}
}

// dirImage builds the directory listing of path as concatenated stat
// records.
func (s *testServer) dirImage(path string) []byte {
	var image []byte
	prefix := ""
	if path != "" {
		prefix = path + "/"
	}
	for p, f := range s.files {
		if p == "" || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.ContainsRune(rest, '/') {
			continue
		}
		image = append(image, ninep.MarshalStat(s.stat(p, f))...)
	}
	return image
}

func (s *testServer) handle(w io.Writer, typ uint8, tag uint16, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := ninep.NewReader(body)

	switch typ {
	case ninep.Tversion:
		msize := r.Uint32()
		_ = r.String()
		resp := ninep.AppendUint32(nil, msize)
		resp = ninep.AppendString(resp, ninep.Version)
		s.reply(w, ninep.Rversion, tag, resp)

	case ninep.Tattach:
		fid := r.Uint32()
		s.fids[fid] = &srvFid{path: ""}
		root := s.files[""]
		s.reply(w, ninep.Rattach, tag, ninep.AppendQid(nil, s.qid("", root)))

	case ninep.Twalk:
		fid := r.Uint32()
		newfid := r.Uint32()
		nname := int(r.Uint16())
		from, ok := s.fids[fid]
		if !ok {
			s.rerror(w, tag, "unknown fid")
			return
		}
		path := from.path
		var resp []byte
		nqid := 0
		for i := 0; i < nname; i++ {
			name := r.String()
			next := name
			if path != "" {
				next = path + "/" + name
			}
			f, ok := s.files[next]
			if !ok {
				break
			}
			path = next
			resp = ninep.AppendQid(resp, s.qid(path, f))
			nqid++
		}
		if nqid == nname {
			s.fids[newfid] = &srvFid{path: path}
		}
		s.reply(w, ninep.Rwalk, tag, append(ninep.AppendUint16(nil, uint16(nqid)), resp...))

	case ninep.Topen:
		fid := r.Uint32()
		sf := s.fids[fid]
		f := s.files[sf.path]
		if f.denied {
			s.rerror(w, tag, "permission denied")
			return
		}
		if f.mode.IsDir() {
			sf.image = s.dirImage(sf.path)
		}
		resp := ninep.AppendQid(nil, s.qid(sf.path, f))
		resp = ninep.AppendUint32(resp, 0)
		s.reply(w, ninep.Ropen, tag, resp)

	case ninep.Tcreate:
		fid := r.Uint32()
		name := r.String()
		perm := ninep.FileMode(r.Uint32())
		sf := s.fids[fid]
		if s.files[sf.path].denied {
			s.rerror(w, tag, "permission denied")
			return
		}
		path := name
		if sf.path != "" {
			path = sf.path + "/" + name
		}
		f := &srvFile{mode: perm}
		s.files[path] = f
		sf.path = path
		resp := ninep.AppendQid(nil, s.qid(path, f))
		resp = ninep.AppendUint32(resp, 0)
		s.reply(w, ninep.Rcreate, tag, resp)

	case ninep.Tread:
		fid := r.Uint32()
		offset := r.Uint64()
		count := int(r.Uint32())
		sf := s.fids[fid]
		f := s.files[sf.path]
		data := f.data
		if f.mode.IsDir() {
			data = sf.image
		}
		if f.delay > 0 {
			s.mu.Unlock()
			time.Sleep(f.delay)
			s.mu.Lock()
		}
		if offset > uint64(len(data)) {
			offset = uint64(len(data))
		}
		chunk := data[offset:]
		if len(chunk) > count {
			chunk = chunk[:count]
		}
		s.reply(w, ninep.Rread, tag, append(ninep.AppendUint32(nil, uint32(len(chunk))), chunk...))

	case ninep.Twrite:
		fid := r.Uint32()
		offset := r.Uint64()
		count := int(r.Uint32())
		data := r.Bytes(count)
		sf := s.fids[fid]
		f := s.files[sf.path]
		if grow := int(offset) + count - len(f.data); grow > 0 {
			f.data = append(f.data, make([]byte, grow)...)
		}
		copy(f.data[offset:], data)
		s.reply(w, ninep.Rwrite, tag, ninep.AppendUint32(nil, uint32(count)))

	case ninep.Tclunk:
		delete(s.fids, r.Uint32())
		s.reply(w, ninep.Rclunk, tag, nil)

	case ninep.Tremove:
		fid := r.Uint32()
		sf := s.fids[fid]
		delete(s.files, sf.path)
		delete(s.fids, fid)
		s.reply(w, ninep.Rremove, tag, nil)

	case ninep.Tstat:
		fid := r.Uint32()
		sf := s.fids[fid]
		rec := ninep.MarshalStat(s.stat(sf.path, s.files[sf.path]))
		s.reply(w, ninep.Rstat, tag, append(ninep.AppendUint16(nil, uint16(len(rec))), rec...))

	case ninep.Tflush:
		s.reply(w, ninep.Rflush, tag, nil)

	default:
		s.rerror(w, tag, "not implemented")
	}
}

func defaultTree() map[string]*srvFile {
	return map[string]*srvFile{
		"":           {mode: 0o755 | ninep.DMDIR},
		"event":      {data: []byte("CreateTag 1\nFocusTag 1\n")},
		"ctl":        {data: []byte("view 1\n")},
		"tagrules":   {denied: true},
		"lbar":             {mode: 0o755 | ninep.DMDIR},
		"lbar/1":           {data: []byte("#000000 #ffffff 1")},
		"lbar/2":           {data: []byte("#000000 #ffffff 2")},
		"cfg":              {mode: 0o755 | ninep.DMDIR},
		"cfg/theme":        {mode: 0o755 | ninep.DMDIR},
		"cfg/theme/colors": {data: []byte("nested")},
	}
}

func dialTest(t *testing.T, s *testServer) *client.Client {
	t.Helper()
	c, err := client.Dial(s.addr(), client.WithUser("glenda"), client.WithDialTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDial(t *testing.T) {
	t.Run("Connects and attaches", func(t *testing.T) {
		s := newTestServer(t, defaultTree())
		c := dialTest(t, s)
		assert.Equal(t, s.addr(), c.String())
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
	})

	t.Run("Bad address", func(t *testing.T) {
		_, err := client.Dial("udp!somewhere")
		require.ErrorIs(t, err, client.ErrInvalidAddress)
	})

	t.Run("Refused connection", func(t *testing.T) {
		_, err := client.Dial("127.0.0.1:1", client.WithDialTimeout(time.Second))
		require.Error(t, err)
	})
}

func TestClientOpen(t *testing.T) {
	t.Run("Read whole file", func(t *testing.T) {
		s := newTestServer(t, defaultTree())
		c := dialTest(t, s)

		f, err := c.Open("event", ninep.OREAD)
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "CreateTag 1\nFocusTag 1\n", string(data))
	})

	t.Run("Nested path", func(t *testing.T) {
		s := newTestServer(t, defaultTree())
		c := dialTest(t, s)

		f, err := c.Open("/cfg/theme/colors", ninep.OREAD)
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "nested", string(data))
	})

	t.Run("Missing file", func(t *testing.T) {
		s := newTestServer(t, defaultTree())
		c := dialTest(t, s)

		_, err := c.Open("no/such/file", ninep.OREAD)
		require.ErrorIs(t, err, client.ErrNoSuchFile)
	})

	t.Run("Server refusal carries the server's message", func(t *testing.T) {
		s := newTestServer(t, defaultTree())
		c := dialTest(t, s)

		_, err := c.Open("tagrules", ninep.OREAD)
		var remote *client.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "permission denied", remote.Msg)
	})
}

func TestClientWrite(t *testing.T) {
	t.Run("Write updates the file", func(t *testing.T) {
		s := newTestServer(t, defaultTree())
		c := dialTest(t, s)

		f, err := c.Open("ctl", ninep.OWRITE)
		require.NoError(t, err)
		n, err := f.Write([]byte("view 2\n"))
		require.NoError(t, err)
		assert.Equal(t, 7, n)
		require.NoError(t, f.Close())

		assert.Equal(t, "view 2\n", string(s.file("ctl").data))
	})

	t.Run("Create writes a new file", func(t *testing.T) {
		s := newTestServer(t, defaultTree())
		c := dialTest(t, s)

		f, err := c.Create("lbar/3", 0o644, ninep.OWRITE)
		require.NoError(t, err)
		_, err = f.Write([]byte("#000000 #ffffff 3"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		assert.Equal(t, "#000000 #ffffff 3", string(s.file("lbar/3").data))
	})
}

func TestClientStat(t *testing.T) {
	s := newTestServer(t, defaultTree())
	c := dialTest(t, s)

	stat, err := c.Stat("event")
	require.NoError(t, err)
	assert.Equal(t, "event", stat.Name)
	assert.Equal(t, uint64(23), stat.Length)
	assert.Equal(t, "glenda", stat.UID)

	_, err = c.Stat("missing")
	require.ErrorIs(t, err, client.ErrNoSuchFile)
}

func TestClientRemove(t *testing.T) {
	s := newTestServer(t, defaultTree())
	c := dialTest(t, s)

	require.NoError(t, c.Remove("lbar/1"))
	assert.Nil(t, s.file("lbar/1"))
	_, err := c.Open("lbar/1", ninep.OREAD)
	require.ErrorIs(t, err, client.ErrNoSuchFile)
}

func TestFidReadDeadline(t *testing.T) {
	t.Run("Timed out read resumes", func(t *testing.T) {
		tree := defaultTree()
		tree["slow"] = &srvFile{data: []byte("late\n"), delay: 150 * time.Millisecond}
		s := newTestServer(t, tree)
		c := dialTest(t, s)

		f, err := c.Open("slow", ninep.OREAD)
		require.NoError(t, err)
		defer f.Close()

		buf := make([]byte, 64)
		_, err = f.ReadDeadline(buf, 20*time.Millisecond)
		require.ErrorIs(t, err, os.ErrDeadlineExceeded)

		// The same request is still in flight; an unbounded read picks up
		// its response, no bytes are lost.
		n, err := f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "late\n", string(buf[:n]))
	})

	t.Run("Close flushes a pending read", func(t *testing.T) {
		tree := defaultTree()
		tree["slow"] = &srvFile{data: []byte("late\n"), delay: 150 * time.Millisecond}
		s := newTestServer(t, tree)
		c := dialTest(t, s)

		f, err := c.Open("slow", ninep.OREAD)
		require.NoError(t, err)

		buf := make([]byte, 64)
		_, err = f.ReadDeadline(buf, 20*time.Millisecond)
		require.ErrorIs(t, err, os.ErrDeadlineExceeded)
		require.NoError(t, f.Close())

		// The connection is clean after the flush and clunk.
		g, err := c.Open("event", ninep.OREAD)
		require.NoError(t, err)
		require.NoError(t, g.Close())
	})
}

func TestFidReadDirectory(t *testing.T) {
	s := newTestServer(t, defaultTree())
	c := dialTest(t, s)

	f, err := c.Open("lbar", ninep.OREAD)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)

	var names []string
	for len(data) > 0 {
		stat, n, err := ninep.UnpackStat(data)
		require.NoError(t, err)
		names = append(names, stat.Name)
		data = data[n:]
	}
	assert.ElementsMatch(t, []string{"1", "2"}, names)
}

func TestFidClosed(t *testing.T) {
	s := newTestServer(t, defaultTree())
	c := dialTest(t, s)

	f, err := c.Open("event", ninep.OREAD)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Read(make([]byte, 8))
	require.Error(t, err)
	_, err = f.Write([]byte("x"))
	require.Error(t, err)
}
