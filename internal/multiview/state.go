package multiview

// ConnectionState describes the link lifecycle as seen by callers.
//
// Transitions are driven solely by the connection loop:
//
//	Disconnected → Connecting → Connected
//	Connected → Degraded → Disconnected → Connecting   (on failure)
//	Connecting → Disconnected → Connecting             (on failed attempt)
type ConnectionState int32

const (
	// StateDisconnected means no link and no open attempt in progress.
	StateDisconnected ConnectionState = iota

	// StateConnecting means an open attempt is in progress.
	StateConnecting

	// StateConnected means the link is up and accepting commands.
	StateConnected

	// StateDegraded means a failure was detected and teardown is in
	// progress; pending requests are being failed.
	StateDegraded
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
