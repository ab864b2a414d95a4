package rpc

import (
	"encoding/binary"
	"fmt"

	"github.com/relaykms/kmsgate/codec"
)

// Well-known interface and transfer-syntax UUIDs the KMS host negotiates.
var (
	// InterfaceUUID is the KMS activation interface, version 1.0.
	InterfaceUUID = codec.MustUUID("51c82175-844e-4750-b0d8-ec255555bc06")
	// NDR32UUID is the NDR transfer syntax, version 2.0.
	NDR32UUID = codec.MustUUID("8a885d04-1ceb-11c9-9fe8-08002b104860")
	// BindTimeUUID is the bind-time feature negotiation "syntax" some
	// clients probe for; the host always rejects it.
	BindTimeUUID = codec.MustUUID("6cb71c2c-9812-4540-0300-000000000000")
)

// MaxXmitFrag caps the fragment size the host advertises in BindAck,
// matching what real KMS hosts (and every client in the wild) expect.
const MaxXmitFrag = 5840

// CtxItem is one presentation context offered in a Bind request.
type CtxItem struct {
	ContextID          uint16
	TransItems         uint8
	AbstractSyntax     codec.UUID
	AbstractSyntaxVer  uint32
	TransferSyntax     codec.UUID
	TransferSyntaxVer  uint32
}

const ctxItemSize = 44

// BindRequest is a parsed BIND PDU body.
type BindRequest struct {
	MaxTFrag   uint16
	MaxRFrag   uint16
	AssocGroup uint32
	Items      []CtxItem
}

func ParseBindRequest(data []byte) (*BindRequest, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("rpc: short bind body (%d bytes)", len(data))
	}
	b := &BindRequest{
		MaxTFrag:   binary.LittleEndian.Uint16(data[0:2]),
		MaxRFrag:   binary.LittleEndian.Uint16(data[2:4]),
		AssocGroup: binary.LittleEndian.Uint32(data[4:8]),
	}
	ctxNum := int(data[8])
	offset := 12
	for i := 0; i < ctxNum; i++ {
		if offset+ctxItemSize > len(data) {
			return nil, fmt.Errorf("rpc: short bind context item %d", i)
		}
		var abstractWire, transferWire [16]byte
		copy(abstractWire[:], data[offset+4:offset+20])
		copy(transferWire[:], data[offset+24:offset+40])
		b.Items = append(b.Items, CtxItem{
			ContextID:         binary.LittleEndian.Uint16(data[offset : offset+2]),
			TransItems:        data[offset+2],
			AbstractSyntax:    codec.UUIDFromWire(abstractWire),
			AbstractSyntaxVer: binary.LittleEndian.Uint32(data[offset+20 : offset+24]),
			TransferSyntax:    codec.UUIDFromWire(transferWire),
			TransferSyntaxVer: binary.LittleEndian.Uint32(data[offset+40 : offset+44]),
		})
		offset += ctxItemSize
	}
	return b, nil
}

const ctxItemResultSize = 24

// BuildBindAck answers a parsed Bind request on the given listening port.
// Every offered context whose transfer syntax is NDR32 is accepted; every
// other context (including the bind-time-feature-negotiation probe) is
// provider-rejected, matching how real KMS hosts respond.
func BuildBindAck(reqHeader *Header, bind *BindRequest, port int) []byte {
	maxTFrag := bind.MaxTFrag
	if maxTFrag > MaxXmitFrag {
		maxTFrag = MaxXmitFrag
	}
	maxRFrag := bind.MaxRFrag
	if maxRFrag > MaxXmitFrag {
		maxRFrag = MaxXmitFrag
	}

	portStr := fmt.Sprintf("%d", port)
	secondaryAddrLen := uint16(len(portStr) + 1)
	pad := (4 - ((int(secondaryAddrLen) + 26) % 4)) % 4

	results := make([]byte, 0, ctxItemResultSize*len(bind.Items))
	for _, item := range bind.Items {
		var result, reason uint16
		var ts codec.UUID
		var tsVer uint32
		if item.TransferSyntax == NDR32UUID {
			result, ts, tsVer = ContResultAccept, NDR32UUID, 2
		} else {
			result, reason = ContResultProvReject, ContResultProvReject
		}
		buf := make([]byte, ctxItemResultSize)
		binary.LittleEndian.PutUint16(buf[0:2], result)
		binary.LittleEndian.PutUint16(buf[2:4], reason)
		wire := ts.WireBytes()
		copy(buf[4:20], wire[:])
		binary.LittleEndian.PutUint32(buf[20:24], tsVer)
		results = append(results, buf...)
	}

	fragLen := 26 + int(secondaryAddrLen) + pad + 4 + len(results)
	out := make([]byte, fragLen)
	hdr := Header{
		VerMajor:       reqHeader.VerMajor,
		VerMinor:       reqHeader.VerMinor,
		Type:           PacketTypeBindAck,
		Flags:          FlagFirstFrag | FlagLastFrag | FlagConcMpx,
		Representation: reqHeader.Representation,
		FragLen:        uint16(fragLen),
		AuthLen:        reqHeader.AuthLen,
		CallID:         reqHeader.CallID,
	}
	hdr.marshalInto(out[:HeaderSize])

	offset := HeaderSize
	binary.LittleEndian.PutUint16(out[offset:offset+2], maxTFrag)
	offset += 2
	binary.LittleEndian.PutUint16(out[offset:offset+2], maxRFrag)
	offset += 2
	binary.LittleEndian.PutUint32(out[offset:offset+4], 0x1063bf3f) // assoc_group
	offset += 4
	binary.LittleEndian.PutUint16(out[offset:offset+2], secondaryAddrLen)
	offset += 2
	copy(out[offset:], portStr)
	offset += len(portStr)
	offset++ // NUL terminator, buffer already zeroed
	offset += pad
	out[offset] = uint8(len(bind.Items))
	offset += 2 // ctx_num + reserved
	offset += 2 // reserved2
	copy(out[offset:], results)
	return out
}

// BuildBindNak rejects a Bind outright (used when the abstract syntax is
// not the KMS interface at all).
func BuildBindNak(reqHeader *Header, reason uint16) []byte {
	out := make([]byte, HeaderSize+2)
	hdr := Header{
		VerMajor:       reqHeader.VerMajor,
		VerMinor:       reqHeader.VerMinor,
		Type:           PacketTypeBindNak,
		Flags:          FlagFirstFrag | FlagLastFrag,
		Representation: reqHeader.Representation,
		FragLen:        uint16(HeaderSize + 2),
		CallID:         reqHeader.CallID,
	}
	hdr.marshalInto(out[:HeaderSize])
	binary.LittleEndian.PutUint16(out[HeaderSize:], reason)
	return out
}
