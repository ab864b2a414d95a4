package kmsmsg

import (
	"bytes"

	"github.com/relaykms/kmsgate/crypto"
)

const v4HashLen = 16

// v4Hash is the fixed 16-byte keyed checksum protecting a V4 envelope:
// the low 16 bytes of HMAC-SHA-256 under the fixed V4 key.
func v4Hash(inner []byte) [v4HashLen]byte {
	full := crypto.HMACSHA256(crypto.KeyV4[:], inner)
	var out [v4HashLen]byte
	copy(out[:], full[:v4HashLen])
	return out
}

// decodeV4 verifies and strips the trailing keyed-hash, returning the
// inner (plaintext) request/response bytes.
func decodeV4(envelope []byte) ([]byte, error) {
	if len(envelope) < v4HashLen {
		return nil, newProtocolError(BadV4Hash, "envelope too short (%d bytes)", len(envelope))
	}
	split := len(envelope) - v4HashLen
	inner, tag := envelope[:split], envelope[split:]
	want := v4Hash(inner)
	if !bytes.Equal(want[:], tag) {
		return nil, newProtocolError(BadV4Hash, "hash mismatch")
	}
	return inner, nil
}

// encodeV4 appends the keyed hash to inner, producing the wire envelope.
func encodeV4(inner []byte) []byte {
	tag := v4Hash(inner)
	out := make([]byte, 0, len(inner)+v4HashLen)
	out = append(out, inner...)
	out = append(out, tag[:]...)
	return out
}
