package rpc

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/relaykms/kmsgate/codec"
)

// BuildBindRequest builds a single-fragment BIND PDU offering the KMS
// activation interface over the NDR32 transfer syntax, the shape every
// real KMS client sends before its first activation request.
func BuildBindRequest(callID uint32) []byte {
	w := codec.NewWriter()
	w.U16(MaxXmitFrag)
	w.U16(MaxXmitFrag)
	w.U32(0)
	w.Raw([]byte{1, 0, 0, 0}) // ctx_num=1, reserved, reserved2
	w.U16(0)                 // context_id
	w.Raw([]byte{1, 0})      // n_transfer_syn=1, reserved
	w.UUID(InterfaceUUID)
	w.U32(1)
	w.UUID(NDR32UUID)
	w.U32(2)
	body := w.Bytes()

	out := make([]byte, HeaderSize+len(body))
	h := Header{VerMajor: 5, Type: PacketTypeBind, Flags: FlagFirstFrag | FlagLastFrag, FragLen: uint16(len(out)), CallID: callID}
	h.marshalInto(out[:HeaderSize])
	copy(out[HeaderSize:], body)
	return out
}

// BuildRPCRequest wraps stub (an already-enveloped KMS request body) in a
// single-fragment REQUEST PDU addressed at opnum 0, the only operation
// the KMS interface exposes.
func BuildRPCRequest(stub []byte, callID uint32) []byte {
	out := make([]byte, RequestHeaderSize+len(stub))
	h := Header{VerMajor: 5, Type: PacketTypeRequest, Flags: FlagFirstFrag | FlagLastFrag, FragLen: uint16(len(out)), CallID: callID}
	h.marshalInto(out[:HeaderSize])
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(stub))) // alloc_hint
	// ctx_id, opnum left zero
	copy(out[RequestHeaderSize:], stub)
	return out
}

// RecvOne reads exactly one PDU from conn using its frag_len header field
// and returns the parsed header alongside the PDU's payload past whichever
// fixed header applies to its type (RespHeaderSize for a Response,
// HeaderSize otherwise).
func RecvOne(conn net.Conn) (*Header, []byte, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(conn, hdrBuf); err != nil {
		return nil, nil, err
	}
	header, err := ParseHeader(hdrBuf)
	if err != nil {
		return nil, nil, err
	}
	if int(header.FragLen) < HeaderSize {
		return nil, nil, fmt.Errorf("rpc: frag_len %d shorter than header", header.FragLen)
	}
	rest := make([]byte, int(header.FragLen)-HeaderSize)
	if len(rest) > 0 {
		if _, err := io.ReadFull(conn, rest); err != nil {
			return nil, nil, err
		}
	}

	switch header.Type {
	case PacketTypeResponse:
		if len(rest) < RespHeaderSize-HeaderSize {
			return nil, nil, fmt.Errorf("rpc: response PDU shorter than its header")
		}
		return header, rest[RespHeaderSize-HeaderSize:], nil
	default:
		return header, rest, nil
	}
}
