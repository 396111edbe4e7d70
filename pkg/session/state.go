package session

// State is the lifecycle state of an Orchestrator.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
