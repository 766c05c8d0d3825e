package types

import "context"

// Hooks defines callbacks for Pipeline events.
//
// All hooks are optional. OnUnitResult runs synchronously on the collector's
// emission path, before the result reaches the reorder buffer, and must
// return quickly. The other hooks run in background goroutines and receive
// the session's context.
//
// IMPORTANT: Hook execution behavior:
//   - OnUnitResult invocations are serialized; no two run at the same time
//   - OnUnitResult is never called after a session is stopped
//   - Hook errors are logged but don't fail pipeline operations
//
// Example:
//
//	hooks := &framepipe.Hooks{
//	    OnUnitResult: func(r framepipe.UnitResult) {
//	        fmt.Printf("unit %d: %s\n", r.Seq, r.Outcome)
//	    },
//	}
type Hooks struct {
	// OnUnitResult is called as soon as a unit resolves, in completion order.
	OnUnitResult func(result UnitResult)

	// OnSessionStateChanged is called when a session transitions state.
	OnSessionStateChanged func(ctx context.Context, sessionID string, from, to SessionState) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
