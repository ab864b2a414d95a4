// Package rpc implements the DCE/RPC-over-TCP framing the KMS host speaks:
// the common PDU header, Bind/BindAck negotiation, Request/Response bodies,
// fault PDUs, and fragment reassembly for oversized activation requests.
package rpc

import (
	"encoding/binary"
	"fmt"
)

// PDU types (DCE 1.1: Remote Procedure Call, §12.6.3).
const (
	PacketTypeRequest       = 0x00
	PacketTypePing          = 0x01
	PacketTypeResponse      = 0x02
	PacketTypeFault         = 0x03
	PacketTypeWorking       = 0x04
	PacketTypeNoCall        = 0x05
	PacketTypeReject        = 0x06
	PacketTypeAck           = 0x07
	PacketTypeCLCancel      = 0x08
	PacketTypeFAck          = 0x09
	PacketTypeCancelAck     = 0x0A
	PacketTypeBind          = 0x0B
	PacketTypeBindAck       = 0x0C
	PacketTypeBindNak       = 0x0D
	PacketTypeAlterContext  = 0x0E
	PacketTypeAlterContextR = 0x0F
	PacketTypeAuth3         = 0x10
	PacketTypeShutdown      = 0x11
	PacketTypeCOCancel      = 0x12
	PacketTypeOrphaned      = 0x13
)

// PDU flags.
const (
	FlagFirstFrag   = 0x01
	FlagLastFrag    = 0x02
	FlagSupportSign = 0x04
	FlagReserved    = 0x08
	FlagConcMpx     = 0x10
	FlagDidNotExec  = 0x20
	FlagMaybe       = 0x40
	FlagObjectUUID  = 0x80
)

// Context negotiation result codes (p_cont_def_result_t).
const (
	ContResultAccept     = 0
	ContResultUserReject = 1
	ContResultProvReject = 2
)

// Header is the common 16-byte PDU header every DCE/RPC packet opens with.
type Header struct {
	VerMajor       uint8
	VerMinor       uint8
	Type           uint8
	Flags          uint8
	Representation uint32
	FragLen        uint16
	AuthLen        uint16
	CallID         uint32
}

const HeaderSize = 16

func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("rpc: short header (%d bytes)", len(data))
	}
	h := &Header{
		VerMajor:       data[0],
		VerMinor:       data[1],
		Type:           data[2],
		Flags:          data[3],
		Representation: binary.LittleEndian.Uint32(data[4:8]),
		FragLen:        binary.LittleEndian.Uint16(data[8:10]),
		AuthLen:        binary.LittleEndian.Uint16(data[10:12]),
		CallID:         binary.LittleEndian.Uint32(data[12:16]),
	}
	return h, nil
}

func (h *Header) marshalInto(buf []byte) {
	buf[0] = h.VerMajor
	buf[1] = h.VerMinor
	buf[2] = h.Type
	buf[3] = h.Flags
	binary.LittleEndian.PutUint32(buf[4:8], h.Representation)
	binary.LittleEndian.PutUint16(buf[8:10], h.FragLen)
	binary.LittleEndian.PutUint16(buf[10:12], h.AuthLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.CallID)
}

func (h *Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	h.marshalInto(buf)
	return buf
}

// RequestHeader extends Header with the fields the request PDU adds ahead
// of its stub data.
type RequestHeader struct {
	Header
	AllocHint uint32
	CtxID     uint16
	OpNum     uint16
}

const RequestHeaderSize = 24

func ParseRequestHeader(data []byte) (*RequestHeader, error) {
	if len(data) < RequestHeaderSize {
		return nil, fmt.Errorf("rpc: short request header (%d bytes)", len(data))
	}
	base, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	return &RequestHeader{
		Header:    *base,
		AllocHint: binary.LittleEndian.Uint32(data[16:20]),
		CtxID:     binary.LittleEndian.Uint16(data[20:22]),
		OpNum:     binary.LittleEndian.Uint16(data[22:24]),
	}, nil
}

// StubData returns the request's NDR stub bytes, skipping the object UUID
// (present only when FlagObjectUUID is set) and any auth trailer.
func (h *RequestHeader) StubData(fullPacket []byte) []byte {
	offset := RequestHeaderSize
	if h.Flags&FlagObjectUUID != 0 {
		offset += 16
	}
	end := int(h.FragLen) - int(h.AuthLen)
	if h.AuthLen > 0 {
		end -= 8 // sec_trailer
	}
	if end > len(fullPacket) {
		end = len(fullPacket)
	}
	if offset >= end {
		return nil
	}
	return fullPacket[offset:end]
}

const RespHeaderSize = 24

// BuildResponse wraps stub data (the KMS response body) in a single-fragment
// RESPONSE PDU answering reqHeader's call.
func BuildResponse(reqHeader *RequestHeader, stub []byte) []byte {
	out := make([]byte, RespHeaderSize+len(stub))
	resp := Header{
		VerMajor:       reqHeader.VerMajor,
		VerMinor:       reqHeader.VerMinor,
		Type:           PacketTypeResponse,
		Flags:          FlagFirstFrag | FlagLastFrag,
		Representation: reqHeader.Representation,
		FragLen:        uint16(RespHeaderSize + len(stub)),
		CallID:         reqHeader.CallID,
	}
	resp.marshalInto(out[:HeaderSize])
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(stub))) // alloc_hint
	binary.LittleEndian.PutUint16(out[20:22], reqHeader.CtxID)
	// cancel_count, padding left zero
	copy(out[RespHeaderSize:], stub)
	return out
}
