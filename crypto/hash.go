package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
)

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HMACSHA256 returns the HMAC-SHA-256 of msg under key.
func HMACSHA256(key, msg []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// RandomBytes returns n cryptographically random bytes, used for the V6
// per-request IV and the V5 per-session salt.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
