package rpc

import "encoding/binary"

// DCE/RPC status codes used in fault PDUs.
const (
	StatusOpRangeError = 0x1c010002 // nca_s_op_rng_error
	StatusUnknownIf     = 0x1c010003 // nca_s_unk_if
	StatusProtoError    = 0x1c01000b // nca_s_proto_error
)

// BuildFault answers a request with a FAULT PDU carrying the given DCE
// status code (StatusOpRangeError for an opnum other than 0, the KMS
// interface's only operation).
func BuildFault(reqHeader *Header, status uint32) []byte {
	const bodyLen = 4 + 2 + 1 + 1 + 4 // alloc_hint, ctx_id, cancel_count, pad, status
	out := make([]byte, HeaderSize+bodyLen)
	hdr := Header{
		VerMajor:       reqHeader.VerMajor,
		VerMinor:       reqHeader.VerMinor,
		Type:           PacketTypeFault,
		Flags:          FlagFirstFrag | FlagLastFrag,
		Representation: reqHeader.Representation,
		FragLen:        uint16(HeaderSize + bodyLen),
		CallID:         reqHeader.CallID,
	}
	hdr.marshalInto(out[:HeaderSize])
	binary.LittleEndian.PutUint32(out[16:20], 0) // alloc_hint
	// ctx_id, cancel_count, pad left zero
	binary.LittleEndian.PutUint32(out[20+4:20+8], status)
	return out
}
