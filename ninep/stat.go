package ninep

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted is returned by UnpackStat when the buffer holds no more
	// data. It signals that the caller must refill from the transport, it
	// is not a decoding failure.
	ErrExhausted = errors.New("stat buffer exhausted")

	// ErrMalformedStat is returned when a record's declared extent runs
	// past the bytes actually available, or its fields overrun the
	// declared extent. Each physical read is guaranteed by protocol
	// framing to contain only whole records, so this is a hard error
	// rather than a request for more data.
	ErrMalformedStat = errors.New("malformed stat record")
)

// Stat is one decoded machine-independent file status record.
type Stat struct {
	Type   uint16
	Dev    uint32
	Qid    Qid
	Mode   FileMode
	Atime  uint32
	Mtime  uint32
	Length uint64
	Name   string
	UID    string
	GID    string
	MUID   string
}

// statFixedSize is the wire size of the fixed fields of a stat record,
// excluding the leading size[2] and the four variable strings.
const statFixedSize = 2 + 4 + QidSize + 4 + 4 + 4 + 8

// WireSize returns the encoded size of the record including the leading
// size field.
func (s Stat) WireSize() int {
	return 2 + statFixedSize + 4*2 + len(s.Name) + len(s.UID) + len(s.GID) + len(s.MUID)
}

// AppendStat appends the wire form of the record to b.
func AppendStat(b []byte, s Stat) []byte {
	b = AppendUint16(b, uint16(s.WireSize()-2))
	b = AppendUint16(b, s.Type)
	b = AppendUint32(b, s.Dev)
	b = AppendQid(b, s.Qid)
	b = AppendUint32(b, uint32(s.Mode))
	b = AppendUint32(b, s.Atime)
	b = AppendUint32(b, s.Mtime)
	b = AppendUint64(b, s.Length)
	b = AppendString(b, s.Name)
	b = AppendString(b, s.UID)
	b = AppendString(b, s.GID)
	b = AppendString(b, s.MUID)
	return b
}

// MarshalStat returns the wire form of the record.
func MarshalStat(s Stat) []byte {
	return AppendStat(make([]byte, 0, s.WireSize()), s)
}

// UnpackStat decodes the next stat record from the front of b, returning the
// record and the number of bytes it occupied. An empty buffer returns
// ErrExhausted. A record that starts inside b but does not fit returns
// ErrMalformedStat.
//
// UnpackStat is pure: it performs no I/O and never retains b.
func UnpackStat(b []byte) (Stat, int, error) {
	if len(b) == 0 {
		return Stat{}, 0, ErrExhausted
	}
	if len(b) < 2 {
		return Stat{}, 0, fmt.Errorf("%w: %d trailing bytes", ErrMalformedStat, len(b))
	}
	size := int(b[0]) | int(b[1])<<8
	if size < statFixedSize {
		return Stat{}, 0, fmt.Errorf("%w: declared size %d below minimum %d", ErrMalformedStat, size, statFixedSize)
	}
	if 2+size > len(b) {
		return Stat{}, 0, fmt.Errorf("%w: declared size %d exceeds %d available bytes", ErrMalformedStat, size, len(b)-2)
	}

	r := NewReader(b[2 : 2+size])
	s := Stat{
		Type: r.Uint16(),
		Dev:  r.Uint32(),
		Qid:  r.Qid(),
	}
	s.Mode = FileMode(r.Uint32())
	s.Atime = r.Uint32()
	s.Mtime = r.Uint32()
	s.Length = r.Uint64()
	s.Name = r.String()
	s.UID = r.String()
	s.GID = r.String()
	s.MUID = r.String()
	if !r.Ok() {
		return Stat{}, 0, fmt.Errorf("%w: fields overrun declared size %d", ErrMalformedStat, size)
	}
	return s, 2 + size, nil
}
