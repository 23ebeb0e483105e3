package serialio

import "errors"

// Domain errors for the serial link package.
var (
	// ErrPortNotFound indicates the configured device node does not exist.
	// The usual cause is an unplugged USB adapter.
	ErrPortNotFound = errors.New("serialio: port not found")

	// ErrPortClosed indicates the port has been closed by its owner.
	ErrPortClosed = errors.New("serialio: port closed")

	// ErrReadFailed indicates a fatal read error on an open port.
	ErrReadFailed = errors.New("serialio: read failed")

	// ErrWriteFailed indicates a write did not complete.
	ErrWriteFailed = errors.New("serialio: write failed")
)
