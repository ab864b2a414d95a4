package session

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/relaykms/kmsgate/catalog"
	"github.com/relaykms/kmsgate/codec"
	"github.com/relaykms/kmsgate/config"
	"github.com/relaykms/kmsgate/kmsmsg"
	"github.com/relaykms/kmsgate/rpc"
)

func testEngine(t *testing.T) *kmsmsg.Engine {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return &kmsmsg.Engine{Catalog: cat, Config: config.Default(), Sink: config.NopSink{}}
}

func buildBindPDU(t *testing.T, callID uint32) []byte {
	t.Helper()
	w := codec.NewWriter()
	w.U16(rpc.MaxXmitFrag)
	w.U16(rpc.MaxXmitFrag)
	w.U32(0)
	w.Raw([]byte{1, 0, 0, 0})
	w.U16(0)
	w.Raw([]byte{1, 0})
	w.UUID(rpc.InterfaceUUID)
	w.U32(1)
	w.UUID(rpc.NDR32UUID)
	w.U32(2)
	body := w.Bytes()

	out := make([]byte, rpc.HeaderSize+len(body))
	h := rpc.Header{VerMajor: 5, Type: rpc.PacketTypeBind, Flags: rpc.FlagFirstFrag | rpc.FlagLastFrag, FragLen: uint16(len(out)), CallID: callID}
	copy(out, h.Marshal())
	copy(out[rpc.HeaderSize:], body)
	return out
}

func buildActivationPDU(t *testing.T, callID uint32) []byte {
	t.Helper()
	req := &kmsmsg.ClientRequest{
		RequiredClientCount: 25,
		ApplicationGroup:    codec.MustUUID("55c92734-d682-4d71-983e-d6ec3f16059f"),
		ActivationID:        codec.MustUUID("2de67392-b7a7-462a-b1ca-108dd189f588"),
		KeyManagementID:     codec.RandomUUID(),
		ClientMachineID:     codec.RandomUUID(),
		RequestTime:         132000000000000000,
		MachineName:         "TESTHOST",
	}
	stub, err := kmsmsg.EncodeClientRequestWire(6, 0, req)
	if err != nil {
		t.Fatalf("EncodeClientRequestWire: %v", err)
	}

	out := make([]byte, rpc.RequestHeaderSize+len(stub))
	h := rpc.Header{VerMajor: 5, Type: rpc.PacketTypeRequest, Flags: rpc.FlagFirstFrag | rpc.FlagLastFrag, FragLen: uint16(len(out)), CallID: callID}
	copy(out, h.Marshal())
	copy(out[rpc.RequestHeaderSize:], stub)
	return out
}

func TestServerBindThenActivateOverPipe(t *testing.T) {
	client, serverConn := net.Pipe()
	defer client.Close()

	sess := New(serverConn, testEngine(t), config.NopSink{}, 0, 1688)
	done := make(chan struct{})
	go func() {
		sess.Run(context.Background())
		close(done)
	}()

	bindPDU := buildBindPDU(t, 1)
	if err := writeAll(client, bindPDU); err != nil {
		t.Fatalf("write bind: %v", err)
	}
	ackHeader := readPDUHeader(t, client)
	if ackHeader.Type != rpc.PacketTypeBindAck {
		t.Fatalf("Type = %d, want PacketTypeBindAck", ackHeader.Type)
	}

	activatePDU := buildActivationPDU(t, 2)
	if err := writeAll(client, activatePDU); err != nil {
		t.Fatalf("write activation: %v", err)
	}
	respHeader := readPDUHeader(t, client)
	if respHeader.Type != rpc.PacketTypeResponse {
		t.Fatalf("Type = %d, want PacketTypeResponse", respHeader.Type)
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not close after connection reset")
	}
}

func TestServerRejectsUnknownOpnum(t *testing.T) {
	client, serverConn := net.Pipe()
	defer client.Close()

	sess := New(serverConn, testEngine(t), config.NopSink{}, 0, 1688)
	go sess.Run(context.Background())

	bindPDU := buildBindPDU(t, 3)
	if err := writeAll(client, bindPDU); err != nil {
		t.Fatalf("write bind: %v", err)
	}
	readPDUHeader(t, client)

	pdu := buildActivationPDU(t, 3)
	binary.LittleEndian.PutUint16(pdu[22:24], 7) // opnum != 0
	if err := writeAll(client, pdu); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := readPDUHeader(t, client)
	if h.Type != rpc.PacketTypeFault {
		t.Fatalf("Type = %d, want PacketTypeFault", h.Type)
	}
}

func TestServerFaultsUnknownPDUType(t *testing.T) {
	client, serverConn := net.Pipe()
	defer client.Close()

	sess := New(serverConn, testEngine(t), config.NopSink{}, 0, 1688)
	done := make(chan struct{})
	go func() {
		sess.Run(context.Background())
		close(done)
	}()

	pdu := buildBindPDU(t, 6)
	pdu[2] = rpc.PacketTypePing // overwrite the PDU type byte with something the host doesn't handle
	if err := writeAll(client, pdu); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := readPDUHeader(t, client)
	if h.Type != rpc.PacketTypeFault {
		t.Fatalf("Type = %d, want PacketTypeFault", h.Type)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not close after an unknown PDU type")
	}
}

func TestServerRejectsRequestBeforeBind(t *testing.T) {
	client, serverConn := net.Pipe()
	defer client.Close()

	sess := New(serverConn, testEngine(t), config.NopSink{}, 0, 1688)
	done := make(chan struct{})
	go func() {
		sess.Run(context.Background())
		close(done)
	}()

	if err := writeAll(client, buildActivationPDU(t, 4)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not close after a request preceding bind")
	}
}

func TestManyConcurrentSessions(t *testing.T) {
	const n = 64
	engine := testEngine(t)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		bindPDU := buildBindPDU(t, uint32(i))
		wg.Add(1)
		go func(bindPDU []byte) {
			defer wg.Done()
			client, serverConn := net.Pipe()
			defer client.Close()

			sess := New(serverConn, engine, config.NopSink{}, 0, 1688)
			go sess.Run(context.Background())

			if _, err := client.Write(bindPDU); err != nil {
				t.Errorf("write bind: %v", err)
				return
			}
			buf := make([]byte, rpc.HeaderSize)
			if _, err := readFull(client, buf); err != nil {
				t.Errorf("read header: %v", err)
				return
			}
			h, err := rpc.ParseHeader(buf)
			if err != nil {
				t.Errorf("ParseHeader: %v", err)
				return
			}
			if h.Type != rpc.PacketTypeBindAck {
				t.Errorf("Type = %d, want PacketTypeBindAck", h.Type)
			}
			rest := make([]byte, int(h.FragLen)-rpc.HeaderSize)
			if len(rest) > 0 {
				if _, err := readFull(client, rest); err != nil {
					t.Errorf("read body: %v", err)
				}
			}
		}(bindPDU)
	}
	wg.Wait()
}

func writeAll(w net.Conn, data []byte) error {
	_, err := w.Write(data)
	return err
}

func readPDUHeader(t *testing.T, r net.Conn) *rpc.Header {
	t.Helper()
	buf := make([]byte, rpc.HeaderSize)
	if _, err := readFull(r, buf); err != nil {
		t.Fatalf("read header: %v", err)
	}
	h, err := rpc.ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	rest := make([]byte, int(h.FragLen)-rpc.HeaderSize)
	if len(rest) > 0 {
		if _, err := readFull(r, rest); err != nil {
			t.Fatalf("read body: %v", err)
		}
	}
	return h
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
