package coordinator

// State is the coordinator's position in its Idle → Advancing → Running cycle.
type State int

const (
	// StateIdle means no operation holds the current slot.
	StateIdle State = iota

	// StateAdvancing means the queue head is being moved into the slot.
	StateAdvancing

	// StateRunning means the current operation's pipeline is active.
	StateRunning
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvancing:
		return "advancing"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// transitions is the legal transition table. Anything else is a bug.
var transitions = map[State][]State{
	StateIdle:      {StateAdvancing},
	StateAdvancing: {StateRunning},
	StateRunning:   {StateIdle},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
