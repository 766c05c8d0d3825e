package types

import "context"

// ProgressSink is a key-value side channel for external progress observers.
//
// The core treats the sink as best-effort: errors are logged and counted,
// never propagated.
type ProgressSink interface {
	// Set stores a single progress field for a session.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - sessionID: Session identifier
	//   - field: Field name (FieldProgressPct, FieldUnitsDone, ...)
	//   - value: Field value formatted as a string
	//
	// Returns:
	//   - error: Write error (nil on success)
	Set(ctx context.Context, sessionID, field, value string) error
}
