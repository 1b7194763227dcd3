package enet

import "github.com/pkg/errors"

// Sentinel error kinds, one per row of §7's error-kinds table. Callers use
// errors.Is against these; wrapf attaches operation-specific context the
// way github.com/pkg/errors is used throughout the pack.
var (
	// ErrInvalidArgument: a caller-facing precondition failed (bad channel
	// ID, oversized packet, Send on a non-connected peer, ...).
	ErrInvalidArgument = errors.New("enet: invalid argument")

	// ErrMalformedDatagram: a received datagram failed to decode, or decoded
	// to a value outside its legal range.
	ErrMalformedDatagram = errors.New("enet: malformed datagram")

	// ErrWindowViolation: a reliable sequence number fell outside the
	// acceptable window (§4.1) and was dropped rather than queued.
	ErrWindowViolation = errors.New("enet: reliable window violation")

	// ErrBackpressureDrop: an outgoing or incoming queue hit a capacity
	// limit (TotalWaitingData, MaximumWaitingData, ...) and a command was
	// dropped to relieve it.
	ErrBackpressureDrop = errors.New("enet: dropped under backpressure")

	// ErrTimeout: a peer's reliable commands exceeded the timeout ladder
	// (§4.5) and the peer was zombified.
	ErrTimeout = errors.New("enet: peer timed out")

	// ErrSocketError: the underlying UDP socket returned an error other
	// than EWOULDBLOCK/EAGAIN.
	ErrSocketError = errors.New("enet: socket error")

	// ErrOutOfMemory: an allocation needed to service a command failed.
	ErrOutOfMemory = errors.New("enet: out of memory")
)

// wrapf attaches context to a sentinel error kind, matching the
// errors.Wrapf idiom used across the pack for layered error context.
func wrapf(kind error, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}
