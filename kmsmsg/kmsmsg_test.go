package kmsmsg

import (
	"testing"

	"github.com/relaykms/kmsgate/catalog"
	"github.com/relaykms/kmsgate/codec"
	"github.com/relaykms/kmsgate/config"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	cfg := config.Default()
	return &Engine{Catalog: cat, Config: cfg}
}

func sampleRequest(appGroup, sku codec.UUID) *ClientRequest {
	return &ClientRequest{
		IsClientPIDVerified:    1,
		LicenseStatus:          1,
		RequiredClientCount:    25,
		ApplicationGroup:       appGroup,
		ActivationID:           sku,
		KeyManagementID:        codec.RandomUUID(),
		ClientMachineID:        codec.MustUUID("00112233-4455-6677-8899-aabbccddeeff"),
		RequestTime:            132000000000000000,
		PreviousClientMachineID: codec.UUID{},
		MachineName:            "DESKTOP-KMS01",
	}
}

func buildRequestWire(t *testing.T, major, minor uint16, req *ClientRequest) []byte {
	t.Helper()
	wire, err := EncodeClientRequestWire(major, minor, req)
	if err != nil {
		t.Fatalf("EncodeClientRequestWire v%d: %v", major, err)
	}
	return wire
}

func TestClientRequestRoundTrip(t *testing.T) {
	req := sampleRequest(codec.RandomUUID(), codec.RandomUUID())
	buf := req.Marshal()
	got, err := ParseClientRequest(buf)
	if err != nil {
		t.Fatalf("ParseClientRequest: %v", err)
	}
	if got.ClientMachineID != req.ClientMachineID || got.RequestTime != req.RequestTime {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, req)
	}
	if got.MachineName != req.MachineName {
		t.Fatalf("MachineName round trip = %q, want %q", got.MachineName, req.MachineName)
	}
}

// S1: V6 Windows 11 request, EPID prefix, CMAC verification.
func TestS1_V6Windows11(t *testing.T) {
	e := testEngine(t)
	appGroup := codec.MustUUID("55c92734-d682-4d71-983e-d6ec3f16059f")
	sku := codec.MustUUID("2de67392-b7a7-462a-b1ca-108dd189f588")
	req := sampleRequest(appGroup, sku)
	req.ClientMachineID = codec.MustUUID("00112233-4455-6677-8899-aabbccddeeff")
	req.RequestTime = 132000000000000000

	wire := buildRequestWire(t, 6, 0, req)
	respWire, err := e.HandleRequest("test", wire)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}

	major, minor, envelope, err := peekVersion(respWire)
	if err != nil {
		t.Fatalf("peekVersion: %v", err)
	}
	if major != 6 || minor != 0 {
		t.Fatalf("version = %d.%d, want 6.0", major, minor)
	}

	inner, err := decodeV6(envelope)
	if err != nil {
		t.Fatalf("decodeV6: %v (CMAC must verify)", err)
	}
	resp, err := ParseResponse(inner, true)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(resp.KMSEPID) < 5 || resp.KMSEPID[:5] != "03612" {
		t.Fatalf("KMSEPID = %q, want prefix 03612", resp.KMSEPID)
	}
	if resp.ClientMachineID != req.ClientMachineID {
		t.Fatalf("ClientMachineID not echoed")
	}
	if resp.ResponseTime != req.RequestTime {
		t.Fatalf("ResponseTime not echoed")
	}
}

// S2: V5 Office 2016 — salt || RC4(inner || sha256(inner)[:16]).
func TestS2_V5Office2016(t *testing.T) {
	e := testEngine(t)
	sku := codec.MustUUID("d450596f-894d-49e0-966a-fd39ed4c4c64")
	appGroup := codec.MustUUID("3c40b358-5948-45af-923b-53d21fcc7e79")
	req := sampleRequest(appGroup, sku)

	wire := buildRequestWire(t, 5, 0, req)
	respWire, err := e.HandleRequest("test", wire)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}

	_, _, envelope, err := peekVersion(respWire)
	if err != nil {
		t.Fatalf("peekVersion: %v", err)
	}
	if len(envelope) < v5SaltLen+v5DigestLen {
		t.Fatalf("envelope too short for salt+digest: %d bytes", len(envelope))
	}
	if _, err := decodeV5(envelope); err != nil {
		t.Fatalf("decodeV5: %v (trailing digest must verify)", err)
	}
}

// S3: V4 legacy — inner || keyed hash, server accepts the same shape.
func TestS3_V4Legacy(t *testing.T) {
	e := testEngine(t)
	req := sampleRequest(codec.RandomUUID(), codec.RandomUUID())
	wire := buildRequestWire(t, 4, 0, req)

	respWire, err := e.HandleRequest("test", wire)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	_, _, envelope, err := peekVersion(respWire)
	if err != nil {
		t.Fatalf("peekVersion: %v", err)
	}
	if _, err := decodeV4(envelope); err != nil {
		t.Fatalf("decodeV4: %v", err)
	}
}

// S4: bad V6 CMAC must be rejected.
func TestS4_BadV6CMACRejected(t *testing.T) {
	e := testEngine(t)
	req := sampleRequest(codec.RandomUUID(), codec.RandomUUID())
	wire := buildRequestWire(t, 6, 0, req)
	wire[len(wire)-1] ^= 0xFF // flip a byte inside the trailing CMAC

	if _, err := e.HandleRequest("test", wire); err == nil {
		t.Fatalf("expected error for tampered CMAC")
	} else if pe, ok := err.(*ProtocolError); !ok || pe.Kind != BadV6Cmac {
		t.Fatalf("error = %v, want ProtocolError{Kind: BadV6Cmac}", err)
	}
}

// S5: unknown SKU still yields a valid response with a hex fallback name.
func TestS5_UnknownSKUFallsBack(t *testing.T) {
	e := testEngine(t)
	unknownSKU := codec.MustUUID("00000000-0000-0000-0000-000000000001")
	req := sampleRequest(codec.RandomUUID(), unknownSKU)
	wire := buildRequestWire(t, 6, 0, req)

	respWire, err := e.HandleRequest("test", wire)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if len(respWire) == 0 {
		t.Fatalf("expected a valid response for an unknown SKU")
	}
}

func TestActivatedMachinesNeverBelowMinimum(t *testing.T) {
	got := ActivatedMachines(1, 25, 0)
	if got < 25 {
		t.Fatalf("ActivatedMachines = %d, want >= 25", got)
	}
}

func TestActivatedMachinesReportsConfiguredCountWhenHigher(t *testing.T) {
	got := ActivatedMachines(1, 5, 50)
	if got != 50 {
		t.Fatalf("ActivatedMachines = %d, want 50 (configured value should win when higher)", got)
	}
}

func TestEPIDStableAcrossRequestsWithStore(t *testing.T) {
	e := testEngine(t)
	e.Store = newMemStore()
	appGroup := codec.MustUUID("55c92734-d682-4d71-983e-d6ec3f16059f")
	sku := codec.MustUUID("2de67392-b7a7-462a-b1ca-108dd189f588")
	cmid := codec.MustUUID("cb8fc780-2c05-495a-9710-85afffc904d7")

	req1 := sampleRequest(appGroup, sku)
	req1.ClientMachineID = cmid
	wire1 := buildRequestWire(t, 6, 0, req1)
	resp1, err := e.HandleRequest("test", wire1)
	if err != nil {
		t.Fatalf("HandleRequest #1: %v", err)
	}

	req2 := sampleRequest(appGroup, sku)
	req2.ClientMachineID = cmid
	wire2 := buildRequestWire(t, 6, 0, req2)
	resp2, err := e.HandleRequest("test", wire2)
	if err != nil {
		t.Fatalf("HandleRequest #2: %v", err)
	}

	epid1 := mustEPID(t, resp1)
	epid2 := mustEPID(t, resp2)
	if epid1 != epid2 {
		t.Fatalf("EPID not stable across requests: %q != %q", epid1, epid2)
	}
}

func mustEPID(t *testing.T, respWire []byte) string {
	t.Helper()
	_, _, envelope, err := peekVersion(respWire)
	if err != nil {
		t.Fatalf("peekVersion: %v", err)
	}
	inner, err := decodeV6(envelope)
	if err != nil {
		t.Fatalf("decodeV6: %v", err)
	}
	resp, err := ParseResponse(inner, true)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	return resp.KMSEPID
}

// memStore is a minimal in-memory Store used only to exercise EPID
// stability without pulling in the SQLite-backed implementation.
type memStore struct {
	records map[string]memRecord
}

type memRecord struct {
	epid      string
	nRequests int
}

func newMemStore() *memStore { return &memStore{records: make(map[string]memRecord)} }

func (m *memStore) Upsert(cmid, appGroup, sku codec.UUID, requestTime uint64, candidateEPID string) (string, int, error) {
	key := cmid.String() + "|" + appGroup.String()
	rec, ok := m.records[key]
	if !ok {
		rec = memRecord{epid: candidateEPID, nRequests: 1}
	} else {
		rec.nRequests++
	}
	m.records[key] = rec
	return rec.epid, rec.nRequests, nil
}
