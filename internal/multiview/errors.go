package multiview

import "errors"

// Domain errors for the multiview core. Call sites wrap these with %w and
// detail, so callers match with errors.Is.
var (
	// ErrInvalidParams indicates the command name or parameters failed table
	// validation. The request never touched the wire.
	ErrInvalidParams = errors.New("multiview: invalid command or parameters")

	// ErrNotConnected indicates the link was unusable when the request was
	// admitted; the device never saw it.
	ErrNotConnected = errors.New("multiview: not connected")

	// ErrTimeout indicates the command was written but its response did not
	// complete within the deadline. Whether the device executed it is
	// unknowable from this side of the cable.
	ErrTimeout = errors.New("multiview: command timed out")

	// ErrLinkFailure indicates the link failed while requests were
	// outstanding; every pending request resolves with this error.
	ErrLinkFailure = errors.New("multiview: link failure")

	// ErrProtocolMismatch indicates an inbound line matched no expected
	// pattern for the head-of-line request.
	ErrProtocolMismatch = errors.New("multiview: protocol mismatch")

	// ErrQueueFull indicates the admission queue is at capacity.
	ErrQueueFull = errors.New("multiview: command queue full")

	// ErrClosed indicates the channel has been shut down.
	ErrClosed = errors.New("multiview: channel closed")
)
