// Package multiview implements the command channel for the UHD-401MV
// 4x1 HDMI multiviewer.
//
// The device speaks a line-oriented ASCII protocol over RS-232: commands
// are terminated by '!', responses arrive as one or more plain text lines,
// and nothing on the wire says which response belongs to which command.
// Correlation is purely positional, so this package funnels every command
// through one strict-FIFO pipeline.
//
// # Architecture
//
//	┌─────────────┐           ┌──────────────────┐            ┌────────────┐
//	│   Callers   │  Execute  │     Channel      │  serialio  │  UHD-401MV │
//	│ (API, CLI)  │──────────►│ codec ▸ pending  │◄──────────►│ (RS-232)   │
//	│             │◄──────────│ cache ▸ reconnect│            │            │
//	└─────────────┘  Result   └──────────────────┘            └────────────┘
//
// # Key Responsibilities
//
//   - Encode named commands with validated integer parameters into device
//     lines ("power 1!", "s window 2 in 3!")
//   - Serialise all traffic: one command on the wire at a time, responses
//     matched to the oldest written request
//   - Enforce per-command deadlines; orphan timed-out requests so their
//     late responses are absorbed instead of corrupting the next match
//   - Cache every observed state value with its observation time and
//     connection epoch, including unsolicited front-panel changes
//   - Rebuild the serial connection with jittered exponential backoff and
//     fail all in-flight commands on link loss
//   - Probe device liveness through the ordinary command path and declare
//     the link dead after consecutive probe failures
//
// # Timeout Semantics
//
// A timed-out command has an unknowable outcome: the device may have
// executed it and answered late. The pending table therefore keeps the
// timed-out slot at the head of the queue as an orphan. Lines matching the
// orphan's expected shape are discarded; the first line that cannot belong
// to it retires the orphan, because strict device ordering means its
// response is never coming.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
// Concurrent Execute calls are wire-ordered by admission.
package multiview
