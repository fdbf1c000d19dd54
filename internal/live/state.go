package live

// State is the live channel's connectivity state.
type State int32

const (
	Idle State = iota
	Connecting
	Open
	Closed // reconnect pending
	Failed // configuration error, terminal
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
