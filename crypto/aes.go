package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// AESCBCEncrypt encrypts plaintextPadded (already a multiple of the AES
// block size) under key/iv using AES-128-CBC.
func AESCBCEncrypt(key, iv, plaintextPadded []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(plaintextPadded)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: plaintext length %d is not a multiple of block size", len(plaintextPadded))
	}
	out := make([]byte, len(plaintextPadded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintextPadded)
	return out, nil
}

// AESCBCDecrypt decrypts ciphertext (a multiple of the AES block size)
// under key/iv using AES-128-CBC.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d is not a multiple of block size", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// PKCS7Pad pads data to a multiple of blockSize.
func PKCS7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padding)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padding)
	}
	return out
}

// PKCS7Unpad removes and validates PKCS7 padding.
func PKCS7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%16 != 0 {
		return nil, fmt.Errorf("crypto: invalid padded length %d", len(data))
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > 16 || padding > len(data) {
		return nil, fmt.Errorf("crypto: invalid PKCS7 padding byte %d", padding)
	}
	if !bytes.Equal(data[len(data)-padding:], bytes.Repeat([]byte{byte(padding)}, padding)) {
		return nil, fmt.Errorf("crypto: PKCS7 padding mismatch")
	}
	return data[:len(data)-padding], nil
}
