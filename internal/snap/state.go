package snap

// State is a step of the pipeline state machine:
//
//	Idle -> Collecting -> Archiving -> Authenticating -> Syncing -> CleaningUp -> Done
//
// Failed is reachable from every state except Idle and Done. From Failed the
// run moves to CleaningUp when it failed in Authenticating or later, otherwise
// directly to Done.
type State int

const (
	StateIdle State = iota
	StateCollecting
	StateArchiving
	StateAuthenticating
	StateSyncing
	StateCleaningUp
	StateDone
	StateFailed
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateArchiving:
		return "archiving"
	case StateAuthenticating:
		return "authenticating"
	case StateSyncing:
		return "syncing"
	case StateCleaningUp:
		return "cleaning_up"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ownsLocalState reports whether a failure in s leaves staging and archive
// paths that belong to this run.
func (s State) ownsLocalState() bool {
	return s == StateAuthenticating || s == StateSyncing
}

// Transition is reported to an Observer on every state change.
type Transition struct {
	From State
	To   State
	Err  error // set when To is StateFailed
}

// Observer receives state transitions as they happen, e.g. to render progress.
type Observer func(Transition)
