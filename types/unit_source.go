package types

import "context"

// UnitSource splits an input artifact into ordered units.
//
// Implementations can read from various backends:
//   - Static: fixed list for testing
//   - Chunked: fixed-size chunks of an io.Reader
//   - Custom: demuxed video frames or any other ordered decomposition
//
// The Pipeline calls Units once per session before dispatching.
type UnitSource interface {
	// Units returns the artifact's units in order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//
	// Returns:
	//   - [][]byte: Ordered unit payloads; index i becomes sequence number i
	//   - error: Read error (nil on success)
	Units(ctx context.Context) ([][]byte, error)
}
