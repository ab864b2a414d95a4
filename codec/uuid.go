// Package codec implements the fixed-endian binary primitives the KMS
// wire protocol is built from: little-endian integers, mixed-endian
// UUIDs, length-prefixed UTF-16LE strings, and FILETIME.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// UUID is a 16-byte UUID stored in canonical (big-endian, RFC 4122) form.
// The wire form used by the KMS protocol is mixed-endian: the first three
// fields are little-endian, the last two are big-endian ("bytes_le" in
// Microsoft's own terminology). WireBytes/UUIDFromWire convert between
// the two; String/canonical bytes never touch the wire directly.
type UUID [16]byte

// String renders the canonical RFC 4122 form.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// UUIDFromString parses a canonical (or hyphen-free) UUID string into its
// canonical byte form.
func UUIDFromString(s string) (UUID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("codec: invalid uuid %q: %w", s, err)
	}
	return UUID(parsed), nil
}

// MustUUID panics on a malformed literal; used for known-good constants.
func MustUUID(s string) UUID {
	u, err := UUIDFromString(s)
	if err != nil {
		panic(err)
	}
	return u
}

// RandomUUID generates a random (v4) UUID.
func RandomUUID() UUID {
	return UUID(uuid.New())
}

// IsZero reports whether u is the all-zero UUID.
func (u UUID) IsZero() bool {
	return u == UUID{}
}

// WireBytes returns the 16-byte mixed-endian wire encoding of u: the
// first 4 bytes (time-low) and next two 2-byte fields (time-mid,
// time-hi-and-version) are byte-swapped to little-endian; the remaining
// 8 bytes (clock-seq and node) are left as-is (already "big-endian" in
// the sense that they are not swapped).
func (u UUID) WireBytes() [16]byte {
	var w [16]byte
	binary.LittleEndian.PutUint32(w[0:4], binary.BigEndian.Uint32(u[0:4]))
	binary.LittleEndian.PutUint16(w[4:6], binary.BigEndian.Uint16(u[4:6]))
	binary.LittleEndian.PutUint16(w[6:8], binary.BigEndian.Uint16(u[6:8]))
	copy(w[8:], u[8:])
	return w
}

// UUIDFromWire is the inverse of WireBytes.
func UUIDFromWire(w [16]byte) UUID {
	var u UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(w[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(w[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(w[6:8]))
	copy(u[8:], w[8:])
	return u
}
