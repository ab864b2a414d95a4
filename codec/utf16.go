package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// EncodeUTF16LE encodes s as UTF-16LE bytes, no terminator.
func EncodeUTF16LE(s string) []byte {
	u16s := utf16.Encode([]rune(s))
	b := make([]byte, len(u16s)*2)
	for i, v := range u16s {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

// DecodeUTF16LE decodes UTF-16LE bytes, trimming every trailing NUL code
// unit. Odd byte lengths are rejected, per spec.
func DecodeUTF16LE(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("codec: odd-length utf16le buffer (%d bytes)", len(b))
	}
	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	for len(u16s) > 0 && u16s[len(u16s)-1] == 0 {
		u16s = u16s[:len(u16s)-1]
	}
	return string(utf16.Decode(u16s)), nil
}

// MustDecodeUTF16LE is DecodeUTF16LE for callers that already validated
// the buffer length (e.g. after slicing a length-prefixed field).
func MustDecodeUTF16LE(b []byte) string {
	s, err := DecodeUTF16LE(b)
	if err != nil {
		return ""
	}
	return s
}
