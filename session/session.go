// Package session drives one TCP connection's DCE/RPC lifecycle: bind
// negotiation, activation request dispatch, idle timeout, and the
// Init->BindSeen->Active->Closed state machine spec.md's connection model
// describes.
package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/relaykms/kmsgate/config"
	"github.com/relaykms/kmsgate/kmsmsg"
	"github.com/relaykms/kmsgate/rpc"
)

// State is a connection's position in its DCE/RPC lifecycle.
type State int

const (
	StateInit State = iota
	StateBindSeen
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateBindSeen:
		return "BindSeen"
	case StateActive:
		return "Active"
	default:
		return "Closed"
	}
}

// maxFragLen bounds a single PDU's declared frag_len, matching the
// teacher's DoS guard against an oversized length claim.
const maxFragLen = 1024

// Session owns one accepted connection end to end.
type Session struct {
	conn   net.Conn
	engine *kmsmsg.Engine
	sink   config.Sink
	idle   time.Duration
	port   int

	state State
	re    rpc.Reassembler
}

// New wraps an accepted connection. idle of 0 disables the read deadline.
// port is advertised back to the client in BindAck's secondary address.
func New(conn net.Conn, engine *kmsmsg.Engine, sink config.Sink, idle time.Duration, port int) *Session {
	return &Session{conn: conn, engine: engine, sink: sink, idle: idle, port: port}
}

// Run drives the connection until the peer disconnects, a fatal framing
// error occurs, or ctx is cancelled (graceful shutdown).
func (s *Session) Run(ctx context.Context) {
	defer s.conn.Close()
	defer func() { s.state = StateClosed }()

	peer := s.conn.RemoteAddr().String()
	go func() {
		<-ctx.Done()
		s.conn.SetDeadline(time.Now())
	}()

	buf := make([]byte, maxFragLen)
	for {
		if s.idle > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.idle))
		}
		data, err := recvOne(s.conn, buf)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				s.sink.Emit(config.Event{Level: config.KindResourceError, Kind: "ConnectionRead", Peer: peer, Details: err.Error()})
			}
			return
		}

		header, err := rpc.ParseHeader(data)
		if err != nil {
			s.sink.Emit(config.Event{Level: config.KindProtocolError, Kind: "MalformedPDU", Peer: peer, Details: err.Error()})
			return
		}

		resp, closeAfter, ok := s.dispatch(peer, header, data)
		if !ok {
			return
		}
		if resp != nil {
			if _, err := s.conn.Write(resp); err != nil {
				s.sink.Emit(config.Event{Level: config.KindResourceError, Kind: "ConnectionWrite", Peer: peer, Details: err.Error()})
				return
			}
		}
		if closeAfter {
			return
		}
	}
}

// dispatch handles one PDU, returning the bytes to write back (nil if
// none), whether the connection should close after writing, and whether
// the session should keep running at all.
func (s *Session) dispatch(peer string, header *rpc.Header, data []byte) (resp []byte, closeAfter bool, ok bool) {
	switch header.Type {
	case rpc.PacketTypeBind:
		bind, err := rpc.ParseBindRequest(data[rpc.HeaderSize:])
		if err != nil {
			s.sink.Emit(config.Event{Level: config.KindProtocolError, Kind: "MalformedPDU", Peer: peer, Details: err.Error()})
			return nil, false, false
		}
		s.state = StateBindSeen
		return rpc.BuildBindAck(header, bind, s.port), false, true

	case rpc.PacketTypeRequest:
		if s.state == StateInit {
			s.sink.Emit(config.Event{Level: config.KindProtocolError, Kind: "BindBeforeRequest", Peer: peer})
			return nil, false, false
		}
		reqHeader, stub, done, err := s.re.Feed(data)
		if err != nil {
			s.sink.Emit(config.Event{Level: config.KindProtocolError, Kind: "MalformedPDU", Peer: peer, Details: err.Error()})
			return nil, false, false
		}
		if !done {
			return nil, false, true // wait for the remaining fragments
		}
		if reqHeader.OpNum != 0 {
			s.sink.Emit(config.Event{Level: config.KindProtocolError, Kind: "UnknownOpnum", Peer: peer, Details: fmt.Sprintf("opnum %d", reqHeader.OpNum)})
			return rpc.BuildFault(&reqHeader.Header, rpc.StatusOpRangeError), true, true
		}
		s.state = StateActive
		respBody, err := s.engine.HandleRequest(peer, stub)
		if err != nil {
			// The engine already reported the specific protocol event;
			// there is nothing meaningful left to answer with.
			return nil, true, true
		}
		return rpc.BuildResponse(reqHeader, respBody), false, true

	default:
		s.sink.Emit(config.Event{Level: config.KindProtocolError, Kind: "MalformedPDU", Peer: peer, Details: fmt.Sprintf("pdu type 0x%02x", header.Type)})
		return rpc.BuildFault(header, rpc.StatusProtoError), true, true
	}
}

// recvOne reads exactly one PDU into buf using its frag_len header field.
func recvOne(conn net.Conn, buf []byte) ([]byte, error) {
	if _, err := io.ReadFull(conn, buf[:rpc.HeaderSize]); err != nil {
		return nil, err
	}
	fragLen := binary.LittleEndian.Uint16(buf[8:10])
	if int(fragLen) > len(buf) {
		return nil, fmt.Errorf("session: frag_len %d exceeds buffer capacity %d", fragLen, len(buf))
	}
	if fragLen <= rpc.HeaderSize {
		return buf[:rpc.HeaderSize], nil
	}
	if _, err := io.ReadFull(conn, buf[rpc.HeaderSize:fragLen]); err != nil {
		return nil, err
	}
	return buf[:fragLen], nil
}

// State reports the connection's current lifecycle position.
func (s *Session) State() State { return s.state }
