package types

import "context"

// Writer consumes the ordered output of a session.
//
// WriteUnit is called exactly once per sequence number, in strictly
// ascending order, from a single goroutine.
type Writer interface {
	WriteUnit(ctx context.Context, entry OutputEntry) error
}

// FallbackFunc produces the substitute value for a unit that failed.
//
// Parameters:
//   - seq: Sequence number of the failed unit
//   - original: The unit's original payload
//
// Returns:
//   - []byte: Substitute data written in the unit's slot
type FallbackFunc func(seq int, original []byte) []byte
