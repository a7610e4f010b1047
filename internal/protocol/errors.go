package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol matches every *ProtocolError via errors.Is.
	ErrProtocol = errors.New("protocol error")
	// ErrUnknownTag is wrapped by a ProtocolError when a variant tag is not
	// understood by this build.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrInvalidPack is returned by Encode for packs that cannot be put on
	// the wire.
	ErrInvalidPack = errors.New("invalid pack")
)

// ProtocolError reports bytes that do not decode to a valid Pack.
// The ingress loop drops the offending message and carries on.
type ProtocolError struct {
	// Msg names the message being decoded ("pack", "action", ...).
	Msg string
	// Reason is a short human-readable description.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: decoding %s: %s: %v", e.Msg, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: decoding %s: %s", e.Msg, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProtocol) true for any ProtocolError.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func protoErr(msg, reason string, err error) *ProtocolError {
	return &ProtocolError{Msg: msg, Reason: reason, Err: err}
}
