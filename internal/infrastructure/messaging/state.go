package messaging

// State is the lifecycle of a managed broker connection.
//
//	Disconnected → Connecting → Connected
//	      ↑                        │
//	      └──── close / error ─────┘
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
