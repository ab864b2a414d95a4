package config

import "github.com/relaykms/kmsgate/codec"

// EventKind names the structured event taxonomy from the error-handling
// design: ProtocolError, CatalogMiss, StorageError, ResourceError, and
// ConfigError all report through the same Event shape with a Kind that
// pins the taxonomy entry.
type EventKind string

const (
	KindRequestAccepted EventKind = "RequestAccepted"
	KindResponseSent    EventKind = "ResponseSent"
	KindProtocolError   EventKind = "ProtocolError"
	KindCatalogMiss     EventKind = "CatalogMiss"
	KindStorageError    EventKind = "StorageError"
	KindResourceError   EventKind = "ResourceError"
	KindConfigError     EventKind = "ConfigError"
)

// ProtocolErrorKind enumerates the specific protocol violations §7 names.
type ProtocolErrorKind string

const (
	ProtoBadV4Hash          ProtocolErrorKind = "BadV4Hash"
	ProtoBadV5Digest        ProtocolErrorKind = "BadV5Digest"
	ProtoBadV6CMAC          ProtocolErrorKind = "BadV6Cmac"
	ProtoUnknownVersion     ProtocolErrorKind = "UnknownVersion"
	ProtoMalformedPDU       ProtocolErrorKind = "MalformedPDU"
	ProtoUnknownOpnum       ProtocolErrorKind = "UnknownOpnum"
	ProtoBindBeforeRequest  ProtocolErrorKind = "BindBeforeRequest"
)

// Event is the single structured record every C4-C7 component reports
// through. Only the fields relevant to Kind are populated; the rest are
// left at their zero value.
type Event struct {
	Level EventKind
	Kind  string

	Peer          string
	CMID          codec.UUID
	Version       string
	ApplicationGroup codec.UUID
	SKU           codec.UUID
	RequestTime   uint64
	ClientCount   uint32
	ActivatedCount uint32
	EPID          string
	Details       string
}

// Sink receives structured events from the engine. Implementations must
// not block the caller for long — the engine calls Emit synchronously on
// the request-handling path.
type Sink interface {
	Emit(Event)
}

// NopSink discards every event; useful in tests that don't care about
// observability.
type NopSink struct{}

func (NopSink) Emit(Event) {}
