package codec

import "encoding/binary"

// Writer accumulates a little-endian encoded KMS wire buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) UUID(u UUID) {
	wire := u.WireBytes()
	w.buf = append(w.buf, wire[:]...)
}

func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Reader decodes a little-endian KMS wire buffer sequentially.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() []byte { return r.buf[r.off:] }
func (r *Reader) Len() int          { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.Len() < n {
		return errShort(n, r.Len())
	}
	return nil
}

func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *Reader) UUID() (UUID, error) {
	if err := r.need(16); err != nil {
		return UUID{}, err
	}
	var w [16]byte
	copy(w[:], r.buf[r.off:r.off+16])
	r.off += 16
	return UUIDFromWire(w), nil
}

func (r *Reader) Raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) RawRest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

type shortReadError struct {
	need, have int
}

func (e *shortReadError) Error() string {
	return "codec: short buffer"
}

func errShort(need, have int) error {
	return &shortReadError{need: need, have: have}
}
