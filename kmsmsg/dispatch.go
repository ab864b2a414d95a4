package kmsmsg

import (
	"strconv"

	"github.com/relaykms/kmsgate/catalog"
	"github.com/relaykms/kmsgate/codec"
	"github.com/relaykms/kmsgate/config"
)

// Store is the activation-bookkeeping dependency the message layer
// consults for EPID stability across requests from the same CMID. A nil
// Store disables persistence entirely: every request derives a fresh
// EPID and none of it is remembered.
type Store interface {
	Upsert(cmid, appGroup, sku codec.UUID, requestTime uint64, candidateEPID string) (epid string, nRequests int, err error)
}

// Engine ties the catalog, configuration, and optional store together to
// answer KMS requests. It holds no per-connection state; one Engine is
// shared read-only across every session.
type Engine struct {
	Catalog *catalog.Catalog
	Config  config.Config
	Store   Store
	Sink    config.Sink
}

// HandleRequest decodes, verifies, and answers a single KMS request body
// (the RPC layer's ActivationRequest payload, envelope and all). peer is
// used only for event reporting.
func (e *Engine) HandleRequest(peer string, body []byte) ([]byte, error) {
	sink := e.Sink
	if sink == nil {
		sink = config.NopSink{}
	}

	major, minor, envelope, err := peekVersion(body)
	if err != nil {
		sink.Emit(config.Event{Level: config.KindProtocolError, Kind: "MalformedPDU", Peer: peer, Details: err.Error()})
		return nil, err
	}

	var inner []byte
	var hasHostID bool
	switch major {
	case 4:
		inner, err = decodeV4(envelope)
	case 5:
		inner, err = decodeV5(envelope)
	case 6:
		inner, err = decodeV6(envelope)
		hasHostID = true
	default:
		err = newProtocolError(UnknownVersion, "version %d.%d", major, minor)
	}
	if err != nil {
		kind := "MalformedPDU"
		if pe, ok := err.(*ProtocolError); ok {
			kind = string(pe.Kind)
		}
		sink.Emit(config.Event{Level: config.KindProtocolError, Kind: kind, Peer: peer, Version: versionString(major, minor), Details: err.Error()})
		return nil, err
	}

	req, err := ParseClientRequest(inner)
	if err != nil {
		sink.Emit(config.Event{Level: config.KindProtocolError, Kind: "MalformedPDU", Peer: peer, Details: err.Error()})
		return nil, err
	}
	req.VersionMajor, req.VersionMinor = major, minor

	appName, appKnown := e.Catalog.AppName(req.ApplicationGroup)
	skuName, skuKnown := e.Catalog.SKUName(req.ActivationID)
	if !appKnown {
		sink.Emit(config.Event{Level: config.KindCatalogMiss, Kind: "CatalogMiss", Peer: peer, ApplicationGroup: req.ApplicationGroup, Details: appName})
	}
	if !skuKnown {
		sink.Emit(config.Event{Level: config.KindCatalogMiss, Kind: "CatalogMiss", Peer: peer, SKU: req.ActivationID, Details: skuName})
	}

	sink.Emit(config.Event{
		Level: config.KindRequestAccepted, Kind: "RequestAccepted", Peer: peer,
		CMID: req.ClientMachineID, Version: versionString(major, minor),
		ApplicationGroup: req.ApplicationGroup, SKU: req.ActivationID,
		RequestTime: req.RequestTime, ClientCount: req.RequiredClientCount,
	})

	resp, storageErr := e.buildResponse(req, major, minor, hasHostID)
	if storageErr != nil {
		sink.Emit(config.Event{Level: config.KindStorageError, Kind: "StorageError", CMID: req.ClientMachineID, Details: storageErr.Error()})
	}

	innerResp := resp.Marshal()
	var outEnvelope []byte
	switch major {
	case 4:
		outEnvelope = encodeV4(innerResp)
	case 5:
		outEnvelope, err = encodeV5(innerResp)
	case 6:
		outEnvelope, err = encodeV6(innerResp)
	}
	if err != nil {
		return nil, err
	}

	sink.Emit(config.Event{
		Level: config.KindResponseSent, Kind: "ResponseSent", Peer: peer,
		CMID: req.ClientMachineID, EPID: resp.KMSEPID, ActivatedCount: resp.ActivatedMachines,
	})

	return withVersionPrefix(major, minor, outEnvelope), nil
}

func (e *Engine) buildResponse(req *ClientRequest, major, minor uint16, hasHostID bool) (*Response, error) {
	minClients := e.Catalog.MinClients(req.ApplicationGroup)
	activated := ActivatedMachines(req.RequiredClientCount, minClients, e.Config.ClientCount)

	epid, storageErr := e.resolveEPID(req, minClients)

	resp := &Response{
		VersionMinor:       minor,
		VersionMajor:       major,
		ClientMachineID:    req.ClientMachineID,
		ApplicationGroup:   req.ApplicationGroup,
		ResponseTime:       req.RequestTime,
		ActivatedMachines:  activated,
		ActivationInterval: e.Config.ActivationIntervalMin,
		RenewalInterval:    e.Config.RenewalIntervalMin,
		KMSEPID:            epid,
	}
	if hasHostID {
		resp.HasHostID = true
		resp.KMSHostID = HostID(e.Config.HWID)
	}
	return resp, storageErr
}

// resolveEPID picks the EPID for this response: an operator override
// always wins; otherwise a fresh EPID is derived and, if a store is
// configured, replaced by the previously assigned one for this (CMID,
// application group) pair so repeat requests stay stable.
func (e *Engine) resolveEPID(req *ClientRequest, minClients int) (string, error) {
	if e.Config.EPIDOverride != "" {
		return FormatOverrideEPID(e.Config.EPIDOverride), nil
	}

	prefix, known := e.Catalog.PIDPrefix(req.ApplicationGroup)
	if !known {
		prefix = "00000"
	}
	candidate, err := DeriveEPID(prefix, e.Config.LCID, req.RequestTime)
	if err != nil {
		return "", err
	}
	if e.Store == nil {
		return candidate, nil
	}
	epid, _, err := e.Store.Upsert(req.ClientMachineID, req.ApplicationGroup, req.ActivationID, req.RequestTime, candidate)
	if err != nil {
		return candidate, err
	}
	return epid, nil
}

func versionString(major, minor uint16) string {
	return strconv.Itoa(int(major)) + "." + strconv.Itoa(int(minor))
}

// peekVersion reads the 4-byte unencrypted version prefix every KMS
// request body opens with (the RPC/NDR array length already conveys the
// total size, so there is no separate legacy body-length pair here) and
// returns the remainder as the version-specific envelope.
func peekVersion(body []byte) (major, minor uint16, envelope []byte, err error) {
	r := codec.NewReader(body)
	minor, err = r.U16()
	if err != nil {
		return 0, 0, nil, err
	}
	major, err = r.U16()
	if err != nil {
		return 0, 0, nil, err
	}
	return major, minor, r.RawRest(), nil
}

func withVersionPrefix(major, minor uint16, envelope []byte) []byte {
	w := codec.NewWriter()
	w.U16(minor)
	w.U16(major)
	w.Raw(envelope)
	return w.Bytes()
}
