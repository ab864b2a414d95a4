// Package crypto implements the KMS envelope primitives: RC4, AES-128-CBC,
// AES-CMAC, SHA-256, HMAC-SHA-256, and the fixed protocol keys. Every
// function operates on caller-owned buffers; there is no streaming
// interface and no package-level mutable state.
package crypto

// KeyV5 and KeyV6 are the fixed 16-byte keys the V5 and V6 KMS envelopes
// are built on. They are protocol-defining constants lifted verbatim from
// the canonical KMS reference (transcribed from the teacher go-kms port's
// crypto constants, themselves derived from the public KMS emulator
// community's reverse-engineering of the protocol) and must never be
// regenerated or derived.
var (
	KeyV5 = [16]byte{0xCD, 0x7E, 0x79, 0x6F, 0x2A, 0xB2, 0x5D, 0xCB, 0x55, 0xFF, 0xC8, 0xEF, 0x83, 0x64, 0xC4, 0x70}
	KeyV6 = [16]byte{0xA9, 0x4A, 0x41, 0x95, 0xE2, 0x01, 0x43, 0x2D, 0x9B, 0xCB, 0x46, 0x04, 0x05, 0xD8, 0x4A, 0x21}
	// KeyV4 is the first 16 bytes of the reference implementation's V4
	// key material, truncated to the 16-byte constant spec.md's appendix
	// A calls for (the reference's V4 key is 160 bits for its own,
	// different, keyed-hash construction).
	KeyV4 = [16]byte{0x05, 0x3D, 0x83, 0x07, 0xF9, 0xE5, 0xF0, 0x88, 0xEB, 0x5E, 0xA6, 0x68, 0x6C, 0xF0, 0x37, 0xC7}
)
