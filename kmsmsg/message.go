// Package kmsmsg implements the KMS message layer: decoding a Client
// Request, computing the response fields (EPID, activated count,
// intervals), and dispatching each of V4/V5/V6's distinct wire envelopes.
package kmsmsg

import (
	"fmt"

	"github.com/relaykms/kmsgate/codec"
)

const maxMachineNameCodeUnits = 64

// ClientRequest is the version-independent inner layout every KMS request
// carries once its envelope has been verified and stripped. VersionMajor/
// VersionMinor are not encoded in this layout — the wire body opens with
// an unencrypted 4-byte version pair used purely for envelope dispatch
// (see peekVersion); the caller fills these fields in from that peek.
type ClientRequest struct {
	VersionMinor uint16
	VersionMajor uint16

	IsClientPIDVerified    uint32
	LicenseStatus          uint32
	GracefulShutdown       uint32
	ActivationRequestCount uint32

	ApplicationGroup codec.UUID
	ActivationID     codec.UUID
	KeyManagementID  codec.UUID
	ClientMachineID  codec.UUID

	RequiredClientCount     uint32
	RequestTime             uint64
	PreviousClientMachineID codec.UUID

	MachineName string
}

// ParseClientRequest decodes the inner (post-envelope, post-version-prefix)
// Client Request body.
func ParseClientRequest(buf []byte) (*ClientRequest, error) {
	r := codec.NewReader(buf)
	req := &ClientRequest{}

	var err error
	if req.IsClientPIDVerified, err = r.U32(); err != nil {
		return nil, fmt.Errorf("kmsmsg: is_client_pid_verified: %w", err)
	}
	if req.LicenseStatus, err = r.U32(); err != nil {
		return nil, fmt.Errorf("kmsmsg: license_status: %w", err)
	}
	if req.GracefulShutdown, err = r.U32(); err != nil {
		return nil, fmt.Errorf("kmsmsg: graceful_shutdown: %w", err)
	}
	if req.ActivationRequestCount, err = r.U32(); err != nil {
		return nil, fmt.Errorf("kmsmsg: activation_request_count: %w", err)
	}
	if req.ApplicationGroup, err = r.UUID(); err != nil {
		return nil, fmt.Errorf("kmsmsg: application_group: %w", err)
	}
	if req.ActivationID, err = r.UUID(); err != nil {
		return nil, fmt.Errorf("kmsmsg: activation_id: %w", err)
	}
	if req.KeyManagementID, err = r.UUID(); err != nil {
		return nil, fmt.Errorf("kmsmsg: key_management_id: %w", err)
	}
	if req.ClientMachineID, err = r.UUID(); err != nil {
		return nil, fmt.Errorf("kmsmsg: client_machine_id: %w", err)
	}
	if req.RequiredClientCount, err = r.U32(); err != nil {
		return nil, fmt.Errorf("kmsmsg: required_client_count: %w", err)
	}
	if req.RequestTime, err = r.U64(); err != nil {
		return nil, fmt.Errorf("kmsmsg: request_time: %w", err)
	}
	if req.PreviousClientMachineID, err = r.UUID(); err != nil {
		return nil, fmt.Errorf("kmsmsg: previous_client_machine_id: %w", err)
	}

	nameLen, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("kmsmsg: machine_name_len: %w", err)
	}
	if nameLen/2 > maxMachineNameCodeUnits {
		return nil, fmt.Errorf("kmsmsg: machine_name exceeds %d code units", maxMachineNameCodeUnits)
	}
	nameBytes, err := r.Raw(int(nameLen))
	if err != nil {
		return nil, fmt.Errorf("kmsmsg: machine_name: %w", err)
	}
	name, err := codec.DecodeUTF16LE(nameBytes)
	if err != nil {
		return nil, fmt.Errorf("kmsmsg: machine_name: %w", err)
	}
	req.MachineName = name

	return req, nil
}

// Marshal encodes the inner Client Request, mirroring ParseClientRequest.
// Used by the self-test client to build outbound requests.
func (r *ClientRequest) Marshal() []byte {
	w := codec.NewWriter()
	w.U32(r.IsClientPIDVerified)
	w.U32(r.LicenseStatus)
	w.U32(r.GracefulShutdown)
	w.U32(r.ActivationRequestCount)
	w.UUID(r.ApplicationGroup)
	w.UUID(r.ActivationID)
	w.UUID(r.KeyManagementID)
	w.UUID(r.ClientMachineID)
	w.U32(r.RequiredClientCount)
	w.U64(r.RequestTime)
	w.UUID(r.PreviousClientMachineID)
	nameBytes := codec.EncodeUTF16LE(r.MachineName)
	w.U16(uint16(len(nameBytes)))
	w.Raw(nameBytes)
	return w.Bytes()
}

// Response is the version-independent inner layout the engine builds for
// every request; kms_host_id is only meaningful (non-zero) for V6.
type Response struct {
	VersionMinor uint16
	VersionMajor uint16

	ClientMachineID  codec.UUID
	ApplicationGroup codec.UUID
	ResponseTime     uint64

	ActivatedMachines  uint32
	ActivationInterval uint32
	RenewalInterval    uint32

	KMSEPID string

	HasHostID bool
	KMSHostID [16]byte
}

// Marshal encodes the inner Response. VersionMajor/VersionMinor are not
// re-encoded here — like ClientRequest, they travel only in the
// unencrypted 4-byte version prefix ahead of the envelope.
func (r *Response) Marshal() []byte {
	w := codec.NewWriter()
	epid := codec.EncodeUTF16LE(r.KMSEPID)
	w.U32(uint32(len(epid) + 2)) // +2 for the UTF-16LE NUL terminator
	w.Raw(epid)
	w.Raw([]byte{0, 0})
	w.UUID(r.ClientMachineID)
	w.UUID(r.ApplicationGroup)
	w.U64(r.ResponseTime)
	w.U32(r.ActivatedMachines)
	w.U32(r.ActivationInterval)
	w.U32(r.RenewalInterval)
	if r.HasHostID {
		w.Raw(r.KMSHostID[:])
	}
	return w.Bytes()
}

// ParseResponse decodes an inner Response; hasHostID must be set by the
// caller according to the version being parsed (true only for V6).
func ParseResponse(buf []byte, hasHostID bool) (*Response, error) {
	r := codec.NewReader(buf)
	resp := &Response{HasHostID: hasHostID}

	epidLen, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("kmsmsg: epid_len: %w", err)
	}
	if epidLen < 2 {
		return nil, fmt.Errorf("kmsmsg: epid_len %d too short for NUL terminator", epidLen)
	}
	epidBytes, err := r.Raw(int(epidLen))
	if err != nil {
		return nil, fmt.Errorf("kmsmsg: kms_epid: %w", err)
	}
	epid, err := codec.DecodeUTF16LE(epidBytes)
	if err != nil {
		return nil, fmt.Errorf("kmsmsg: kms_epid: %w", err)
	}
	resp.KMSEPID = epid

	if resp.ClientMachineID, err = r.UUID(); err != nil {
		return nil, fmt.Errorf("kmsmsg: client_machine_id: %w", err)
	}
	if resp.ApplicationGroup, err = r.UUID(); err != nil {
		return nil, fmt.Errorf("kmsmsg: application_group: %w", err)
	}
	if resp.ResponseTime, err = r.U64(); err != nil {
		return nil, fmt.Errorf("kmsmsg: response_time: %w", err)
	}
	if resp.ActivatedMachines, err = r.U32(); err != nil {
		return nil, fmt.Errorf("kmsmsg: activated_machines: %w", err)
	}
	if resp.ActivationInterval, err = r.U32(); err != nil {
		return nil, fmt.Errorf("kmsmsg: activation_interval: %w", err)
	}
	if resp.RenewalInterval, err = r.U32(); err != nil {
		return nil, fmt.Errorf("kmsmsg: renewal_interval: %w", err)
	}
	if hasHostID {
		hostID, err := r.Raw(16)
		if err != nil {
			return nil, fmt.Errorf("kmsmsg: kms_host_id: %w", err)
		}
		copy(resp.KMSHostID[:], hostID)
	}
	return resp, nil
}
