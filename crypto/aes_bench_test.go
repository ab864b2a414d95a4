package crypto

import "testing"

func benchData(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i*31 + int(seed)) & 0xFF)
	}
	return data
}

func BenchmarkPKCS7Pad(b *testing.B) {
	data := benchData(100, 0x11)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		PKCS7Pad(data, 16)
	}
}

func BenchmarkPKCS7Unpad(b *testing.B) {
	data := PKCS7Pad(benchData(100, 0x22), 16)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		PKCS7Unpad(data)
	}
}

func BenchmarkAESCBCEncrypt(b *testing.B) {
	data := PKCS7Pad(benchData(256, 0x44), 16)
	iv := benchData(16, 0x55)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AESCBCEncrypt(KeyV6[:], iv, data)
	}
}

func BenchmarkAESCBCDecrypt(b *testing.B) {
	data := PKCS7Pad(benchData(256, 0x66), 16)
	iv := benchData(16, 0x77)
	ct, _ := AESCBCEncrypt(KeyV6[:], iv, data)
	b.ReportAllocs()
	b.SetBytes(int64(len(ct)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AESCBCDecrypt(KeyV6[:], iv, ct)
	}
}

func BenchmarkAESCMAC(b *testing.B) {
	data := benchData(384, 0x33)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AESCMAC(KeyV6[:], data)
	}
}

func BenchmarkHMACSHA256(b *testing.B) {
	data := benchData(384, 0x99)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		HMACSHA256(KeyV4[:], data)
	}
}
