// Package ninep implements the parts of the 9P2000 wire format needed by a
// client: message framing constants, open modes, permission bits and the
// encoding and decoding of machine-independent stat records.
package ninep

// Version is the protocol version string sent during negotiation.
const Version = "9P2000"

// Special protocol values.
const (
	// NoTag is the tag used for the version request, which is not part of
	// a normal request/response exchange.
	NoTag uint16 = 0xFFFF
	// NoFid is used in attach to indicate that no auth fid is provided.
	NoFid uint32 = 0xFFFFFFFF
)

// HeaderSize is the size of the size[4] type[1] tag[2] message envelope.
const HeaderSize = 4 + 1 + 2

// IOHeaderSize is the worst-case protocol overhead on a read or write
// message. It is subtracted from the negotiated message size to obtain the
// largest usable I/O payload.
const IOHeaderSize = HeaderSize + 4 + 8 + 4

// Message types. Each T-type request is answered by the R-type one above it,
// except Tversion which may be answered by Rerror on ancient servers.
const (
	Tversion uint8 = 100 + iota
	Rversion
	Tauth
	Rauth
	Tattach
	Rattach
	terror // illegal
	Rerror
	Tflush
	Rflush
	Twalk
	Rwalk
	Topen
	Ropen
	Tcreate
	Rcreate
	Tread
	Rread
	Twrite
	Rwrite
	Tclunk
	Rclunk
	Tremove
	Rremove
	Tstat
	Rstat
	Twstat
	Rwstat
)

// Open modes.
const (
	OREAD  uint8 = 0
	OWRITE uint8 = 1
	ORDWR  uint8 = 2
	OEXEC  uint8 = 3
	OTRUNC uint8 = 0x10
)

// MaxWalkNames is the protocol limit on path elements in a single walk.
const MaxWalkNames = 16

// FileMode holds the permission and type bits of a file.
type FileMode uint32

// File mode bits.
const (
	DMDIR    FileMode = 0x80000000
	DMAPPEND FileMode = 0x40000000
	DMEXCL   FileMode = 0x20000000
	DMTMP    FileMode = 0x04000000
)

// IsDir returns true if the directory bit is set.
func (m FileMode) IsDir() bool { return m&DMDIR != 0 }

var rwx = [8]string{"---", "--x", "-w-", "-wx", "r--", "r-x", "rw-", "rwx"}

// String returns the mode as a 10-character "drwxr-xr-x" style string. The
// first character is 'd' for directories, the remaining nine are the owner,
// group and other permission triplets, most significant group first.
func (m FileMode) String() string {
	buf := make([]byte, 0, 10)
	if m.IsDir() {
		buf = append(buf, 'd')
	} else {
		buf = append(buf, '-')
	}
	buf = append(buf, rwx[(m>>6)&7]...)
	buf = append(buf, rwx[(m>>3)&7]...)
	buf = append(buf, rwx[m&7]...)
	return string(buf)
}

// Qid type bits.
const (
	QTDIR    uint8 = 0x80
	QTAPPEND uint8 = 0x40
	QTEXCL   uint8 = 0x20
	QTTMP    uint8 = 0x04
	QTFILE   uint8 = 0x00
)

// Qid is the server's unique identification of a file.
type Qid struct {
	Type    uint8
	Version uint32
	Path    uint64
}

// QidSize is the wire size of a qid.
const QidSize = 1 + 4 + 8
