package zcm

import "errors"

// Error taxonomy. No datagram-level error is ever propagated upstream
// from the receive path — Recv only returns caller-facing errors
// (ErrTimeout, ErrClosed, or ErrTransientIO when the read deadline
// cannot be set); malformed datagrams and a full arena or fragment
// table are handled inside the receive loop instead.
var (
	// ErrInvalidArgument covers channel names that are too long, too
	// many fragments for one message, or other unparseable send input.
	ErrInvalidArgument = errors.New("zcm: invalid argument")

	// ErrTransientIO wraps an underlying socket read/write error.
	ErrTransientIO = errors.New("zcm: transient I/O error")

	// ErrMalformedDatagram covers short reads, bad magic, and length
	// or bounds inconsistencies in a received datagram. It is counted
	// in discarded_bad statistics; callers of Recv never see it
	// directly.
	ErrMalformedDatagram = errors.New("zcm: malformed datagram")

	// ErrResourceExhausted covers a full ring arena or fragment table.
	ErrResourceExhausted = errors.New("zcm: resource exhausted")

	// ErrTimeout is returned by Recv when no message completes before
	// the requested timeout elapses (the Go analogue of the
	// reference's EAGAIN).
	ErrTimeout = errors.New("zcm: receive timed out")

	// ErrClosed is returned by Recv when a read fails because Destroy
	// has closed the socket. Send reports a write on a closed
	// transport as ErrTransientIO.
	ErrClosed = errors.New("zcm: transport closed")
)
