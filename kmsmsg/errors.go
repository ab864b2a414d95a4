package kmsmsg

import "fmt"

// ProtocolErrorKind mirrors config.ProtoBadV4Hash and friends as this
// package's own error type; the string values are the same.
type ProtocolErrorKind string

const (
	BadV4Hash      ProtocolErrorKind = "BadV4Hash"
	BadV5Digest    ProtocolErrorKind = "BadV5Digest"
	BadV6Cmac      ProtocolErrorKind = "BadV6Cmac"
	UnknownVersion ProtocolErrorKind = "UnknownVersion"
)

// ProtocolError reports an envelope or framing violation the caller must
// treat as fatal to the connection, never surfaced to the client in-band.
type ProtocolError struct {
	Kind    ProtocolErrorKind
	Details string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("kmsmsg: protocol error (%s): %s", e.Kind, e.Details)
}

func newProtocolError(kind ProtocolErrorKind, format string, args ...any) error {
	return &ProtocolError{Kind: kind, Details: fmt.Sprintf(format, args...)}
}
