package console

// State is the connection state of a session, owned by the transport and
// mirrored upward for status rendering. Transitions only move forward
// through an attempt cycle; disconnected and error both permit a new
// connecting transition.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateError
)

// String returns the state name for status display and logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
