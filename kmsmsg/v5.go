package kmsmsg

import (
	"bytes"

	"github.com/relaykms/kmsgate/crypto"
)

const v5SaltLen = 16
const v5DigestLen = 16

// v5Key derives the per-session RC4 key from a 16-byte salt: SHA-256 of
// salt||KEY_V5, truncated to 16 bytes.
func v5Key(salt []byte) []byte {
	digest := crypto.SHA256(append(append([]byte{}, salt...), crypto.KeyV5[:]...))
	return digest[:16]
}

// decodeV5 splits the salt, derives the key, decrypts, and verifies the
// trailing SHA-256 digest, returning the inner plaintext.
func decodeV5(envelope []byte) (inner []byte, err error) {
	if len(envelope) < v5SaltLen+v5DigestLen {
		return nil, newProtocolError(BadV5Digest, "envelope too short (%d bytes)", len(envelope))
	}
	salt := envelope[:v5SaltLen]
	ciphertext := envelope[v5SaltLen:]

	key := v5Key(salt)
	plaintext, err := crypto.RC4(key, ciphertext)
	if err != nil {
		return nil, newProtocolError(BadV5Digest, "rc4: %v", err)
	}

	split := len(plaintext) - v5DigestLen
	if split < 0 {
		return nil, newProtocolError(BadV5Digest, "decrypted payload too short")
	}
	inner, digest := plaintext[:split], plaintext[split:]
	want := crypto.SHA256(inner)
	if !bytes.Equal(want[:v5DigestLen], digest) {
		return nil, newProtocolError(BadV5Digest, "digest mismatch")
	}
	return inner, nil
}

// encodeV5 draws a fresh random salt (the server never reuses the
// request's salt for its response) and returns salt||RC4(key, inner||digest).
func encodeV5(inner []byte) ([]byte, error) {
	salt, err := crypto.RandomBytes(v5SaltLen)
	if err != nil {
		return nil, err
	}
	key := v5Key(salt)
	digest := crypto.SHA256(inner)
	payload := append(append([]byte{}, inner...), digest[:v5DigestLen]...)
	ciphertext, err := crypto.RC4(key, payload)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, v5SaltLen+len(ciphertext))
	out = append(out, salt...)
	out = append(out, ciphertext...)
	return out, nil
}
