package kmsmsg

// EncodeClientRequestWire builds the wire body a real KMS client sends: the
// unencrypted 4-byte version prefix followed by the version-appropriate
// envelope wrapping req. Used by the self-test client to construct
// outbound probes and by tests that exercise the RPC/session layers
// end-to-end without depending on this package's unexported envelope
// functions.
func EncodeClientRequestWire(major, minor uint16, req *ClientRequest) ([]byte, error) {
	inner := req.Marshal()
	var envelope []byte
	var err error
	switch major {
	case 4:
		envelope = encodeV4(inner)
	case 5:
		envelope, err = encodeV5(inner)
	case 6:
		envelope, err = encodeV6(inner)
	default:
		err = newProtocolError(UnknownVersion, "version %d.%d", major, minor)
	}
	if err != nil {
		return nil, err
	}
	return withVersionPrefix(major, minor, envelope), nil
}

// DecodeResponseWire is EncodeClientRequestWire's inverse: it peeks the
// version prefix, opens the matching envelope, and parses the inner
// Response. Used by the self-test client to validate a server's answer.
func DecodeResponseWire(wire []byte) (*Response, error) {
	major, _, envelope, err := peekVersion(wire)
	if err != nil {
		return nil, err
	}
	var inner []byte
	switch major {
	case 4:
		inner, err = decodeV4(envelope)
	case 5:
		inner, err = decodeV5(envelope)
	case 6:
		inner, err = decodeV6(envelope)
	default:
		err = newProtocolError(UnknownVersion, "version major %d", major)
	}
	if err != nil {
		return nil, err
	}
	return ParseResponse(inner, major == 6)
}
