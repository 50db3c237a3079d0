package poller

// State is the lifecycle position of a Watcher.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
