// Package serialio owns the exclusive serial connection to the multiviewer.
//
// The device speaks a line-oriented ASCII protocol over RS-232 at a fixed
// 115200 8N1 framing. This package deals only in bytes and lines: it opens
// the port, writes terminated command lines, and runs a single reader
// goroutine that reassembles inbound bytes into complete lines.
//
// # Failure model
//
// The Port never retries. The first fatal I/O error (device unplugged,
// permission revoked, driver EOF) is delivered once on Errors() and the Port
// is dead until the owner opens a fresh one. Recovery policy lives upstream
// in the connection manager, not here.
//
// # Concurrency
//
// Exactly one goroutine reads the port (the internal loop). Writes are
// serialised by a mutex, but the intended caller is a single writer
// goroutine that enforces the device's half-duplex discipline.
package serialio
