package source

import (
	"context"
	"sync"

	"github.com/arloliu/framepipe/types"
)

// Static implements a unit source with a fixed list of units.
type Static struct {
	mu    sync.RWMutex
	units [][]byte
}

var _ types.UnitSource = (*Static)(nil)

// NewStatic creates a new static unit source.
//
// The source returns a fixed list of units that never changes.
// Useful for testing and for artifacts already split in memory.
//
// Parameters:
//   - units: Ordered unit payloads; index i becomes sequence number i
//
// Returns:
//   - *Static: Initialized static source
//
// Example:
//
//	src := source.NewStatic([][]byte{frame0, frame1, frame2})
//	report, err := p.Process(ctx, src, directive, writer)
func NewStatic(units [][]byte) *Static {
	return &Static{
		units: units,
	}
}

// Units returns the static list of units.
//
// Returns:
//   - [][]byte: The fixed list of units
//   - error: Always nil (never fails)
func (s *Static) Units(_ context.Context) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([][]byte, len(s.units))
	copy(result, s.units)

	return result, nil
}

// Update replaces the unit list.
//
// Parameters:
//   - units: New list of units
func (s *Static) Update(units [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.units = make([][]byte, len(units))
	copy(s.units, units)
}
