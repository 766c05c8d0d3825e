package types

// SessionState represents the lifecycle state of a processing session.
//
// A session starts active and moves to exactly one terminal state:
//
//	SessionActive → SessionCompleted | SessionFailed | SessionAborted
//
// Terminal states are final; no transition leaves them.
type SessionState int

const (
	// SessionActive indicates units are being dispatched or collected.
	SessionActive SessionState = iota

	// SessionCompleted indicates every unit resolved and the ordered output was delivered.
	SessionCompleted

	// SessionFailed indicates a session-fatal error (submission retries exhausted).
	SessionFailed

	// SessionAborted indicates the session was stopped before every unit resolved.
	SessionAborted
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionCompleted:
		return "completed"
	case SessionFailed:
		return "failed"
	case SessionAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is final.
func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionAborted
}

// CanTransitionTo reports whether a session in state s may move to next.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	if s != SessionActive {
		return false
	}

	return next.IsTerminal()
}
