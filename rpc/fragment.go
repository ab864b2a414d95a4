package rpc

import "fmt"

// Reassembler joins a PFC_FIRST_FRAG..PFC_LAST_FRAG run of REQUEST PDUs
// belonging to one call into a single stub buffer. KMS activation requests
// fit in one fragment in practice, but a conforming host still has to
// accept a client that splits one across several TCP writes.
type Reassembler struct {
	callID  uint32
	started bool
	header  *RequestHeader
	stub    []byte
}

// Feed processes one REQUEST PDU. When it completes a fragment run it
// returns the reassembled header and stub with done set; otherwise done is
// false and the caller should read more PDUs before calling Feed again.
func (r *Reassembler) Feed(data []byte) (header *RequestHeader, stub []byte, done bool, err error) {
	h, err := ParseRequestHeader(data)
	if err != nil {
		return nil, nil, false, err
	}
	first := h.Flags&FlagFirstFrag != 0
	last := h.Flags&FlagLastFrag != 0

	if first {
		r.callID = h.CallID
		r.header = h
		r.stub = append([]byte(nil), h.StubData(data)...)
		r.started = true
	} else {
		if !r.started {
			return nil, nil, false, fmt.Errorf("rpc: continuation fragment without a first fragment")
		}
		if h.CallID != r.callID {
			return nil, nil, false, fmt.Errorf("rpc: fragment call_id %d does not match in-progress call %d", h.CallID, r.callID)
		}
		r.stub = append(r.stub, continuationStubData(h, data)...)
	}

	if !last {
		return nil, nil, false, nil
	}

	header, stub = r.header, r.stub
	r.started = false
	r.header = nil
	r.stub = nil
	return header, stub, true, nil
}

// continuationStubData extracts stub bytes from a non-first fragment, which
// carries no object UUID of its own regardless of the first fragment's flag.
func continuationStubData(h *RequestHeader, fullPacket []byte) []byte {
	end := int(h.FragLen) - int(h.AuthLen)
	if h.AuthLen > 0 {
		end -= 8
	}
	if end > len(fullPacket) {
		end = len(fullPacket)
	}
	if RequestHeaderSize >= end {
		return nil
	}
	return fullPacket[RequestHeaderSize:end]
}

// Reset discards any in-progress reassembly, used when a connection's
// framing goes bad and the caller wants to fail the call rather than keep
// accumulating fragments that will never complete.
func (r *Reassembler) Reset() {
	r.started = false
	r.header = nil
	r.stub = nil
}
