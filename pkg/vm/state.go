package vm

// State is the lifecycle state of a script number.
type State int

const (
	StateInactive State = iota
	StateRunning
	StateSuspended
	StateWaitingForTag
	StateWaitingForPolyobject
	StateWaitingForScript
	StateTerminating
)

var stateNames = [...]string{
	StateInactive:             "Inactive",
	StateRunning:              "Running",
	StateSuspended:            "Suspended",
	StateWaitingForTag:        "Waiting for tag",
	StateWaitingForPolyobject: "Waiting for polyobject",
	StateWaitingForScript:     "Waiting for script",
	StateTerminating:          "Terminating",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Valid reports whether s is a defined state.
func (s State) Valid() bool {
	return s >= StateInactive && s <= StateTerminating
}

// Waiting reports whether s is one of the blocking wait states.
func (s State) Waiting() bool {
	return s == StateWaitingForTag || s == StateWaitingForPolyobject || s == StateWaitingForScript
}

// Active reports whether a script in state s has a live instance.
func (s State) Active() bool {
	return s != StateInactive
}
