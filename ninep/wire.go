package ninep

import "encoding/binary"

// All multi-byte fields in 9P are little-endian. Strings are a uint16 length
// followed by that many bytes of UTF-8, no terminator.

// AppendUint16 appends v to b in wire byte order.
func AppendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

// AppendUint32 appends v to b in wire byte order.
func AppendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// AppendUint64 appends v to b in wire byte order.
func AppendUint64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

// AppendString appends the length-prefixed wire form of s to b.
func AppendString(b []byte, s string) []byte {
	b = AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

// AppendQid appends the wire form of a qid to b.
func AppendQid(b []byte, q Qid) []byte {
	b = append(b, q.Type)
	b = AppendUint32(b, q.Version)
	return AppendUint64(b, q.Path)
}

// Reader decodes fixed and variable length fields from a byte slice.
// Running past the end of the slice makes every further read return a zero
// value, so callers only have to check Ok once after the last field.
type Reader struct {
	b   []byte
	off int
	ok  bool
}

// NewReader returns a Reader over b. The Reader never retains or modifies b.
func NewReader(b []byte) *Reader {
	return &Reader{b: b, ok: true}
}

// Ok reports whether every read so far stayed within the buffer.
func (r *Reader) Ok() bool { return r.ok }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.b) - r.off }

// Bytes consumes and returns the next n bytes of the buffer.
func (r *Reader) Bytes(n int) []byte {
	if !r.ok || len(r.b)-r.off < n {
		r.ok = false
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

// Uint8 consumes one byte.
func (r *Reader) Uint8() uint8 {
	v := r.Bytes(1)
	if v == nil {
		return 0
	}
	return v[0]
}

// Uint16 consumes a 2-byte field.
func (r *Reader) Uint16() uint16 {
	v := r.Bytes(2)
	if v == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(v)
}

// Uint32 consumes a 4-byte field.
func (r *Reader) Uint32() uint32 {
	v := r.Bytes(4)
	if v == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(v)
}

// Uint64 consumes an 8-byte field.
func (r *Reader) Uint64() uint64 {
	v := r.Bytes(8)
	if v == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(v)
}

// String consumes a length-prefixed string.
func (r *Reader) String() string {
	n := r.Uint16()
	v := r.Bytes(int(n))
	if v == nil {
		return ""
	}
	return string(v)
}

// Qid consumes a wire-format qid.
func (r *Reader) Qid() Qid {
	return Qid{
		Type:    r.Uint8(),
		Version: r.Uint32(),
		Path:    r.Uint64(),
	}
}
