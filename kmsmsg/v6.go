package kmsmsg

import (
	"github.com/relaykms/kmsgate/crypto"
)

const v6IVLen = 16
const v6CMACLen = 16

// decodeV6 verifies the trailing CMAC over iv||ciphertext, then decrypts
// and unpads, returning the inner plaintext.
func decodeV6(envelope []byte) ([]byte, error) {
	if len(envelope) < v6IVLen+v6CMACLen {
		return nil, newProtocolError(BadV6Cmac, "envelope too short (%d bytes)", len(envelope))
	}
	split := len(envelope) - v6CMACLen
	signed, tag := envelope[:split], envelope[split:]

	ok, err := crypto.VerifyAESCMAC(crypto.KeyV6[:], signed, [16]byte(tag))
	if err != nil {
		return nil, newProtocolError(BadV6Cmac, "cmac: %v", err)
	}
	if !ok {
		return nil, newProtocolError(BadV6Cmac, "cmac mismatch")
	}

	iv := signed[:v6IVLen]
	ciphertext := signed[v6IVLen:]
	padded, err := crypto.AESCBCDecrypt(crypto.KeyV6[:], iv, ciphertext)
	if err != nil {
		return nil, newProtocolError(BadV6Cmac, "aes-cbc: %v", err)
	}
	inner, err := crypto.PKCS7Unpad(padded)
	if err != nil {
		return nil, newProtocolError(BadV6Cmac, "pkcs7: %v", err)
	}
	return inner, nil
}

// encodeV6 pads and encrypts inner under a fresh random IV, then appends
// the AES-CMAC over iv||ciphertext.
func encodeV6(inner []byte) ([]byte, error) {
	iv, err := crypto.RandomBytes(v6IVLen)
	if err != nil {
		return nil, err
	}
	padded := crypto.PKCS7Pad(inner, 16)
	ciphertext, err := crypto.AESCBCEncrypt(crypto.KeyV6[:], iv, padded)
	if err != nil {
		return nil, err
	}
	signed := make([]byte, 0, v6IVLen+len(ciphertext))
	signed = append(signed, iv...)
	signed = append(signed, ciphertext...)

	tag, err := crypto.AESCMAC(crypto.KeyV6[:], signed)
	if err != nil {
		return nil, err
	}
	return append(signed, tag[:]...), nil
}

// HostID derives kms_host_id for a V6 response: the first 16 bytes of
// SHA-256(hwid || "Microsoft").
func HostID(hwid [8]byte) [16]byte {
	msg := append(append([]byte{}, hwid[:]...), []byte("Microsoft")...)
	digest := crypto.SHA256(msg)
	var out [16]byte
	copy(out[:], digest[:16])
	return out
}
