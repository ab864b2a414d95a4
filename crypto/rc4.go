package crypto

import "crypto/rc4"

// RC4 encrypts or decrypts stream under key, returning a new buffer (the
// caller's stream is left untouched). RC4 is symmetric:
// the same call decrypts what it encrypted.
func RC4(key, stream []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(stream))
	c.XORKeyStream(out, stream)
	return out, nil
}
