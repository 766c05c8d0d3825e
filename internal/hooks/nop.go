package hooks

import (
	"context"

	"github.com/arloliu/framepipe/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(types.UnitResult)                                                      = (*NopHooks)(nil).OnUnitResult
	_ func(context.Context, string, types.SessionState, types.SessionState) error = (*NopHooks)(nil).OnSessionStateChanged
	_ func(context.Context, error) error                                          = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnUnitResult:          h.OnUnitResult,
		OnSessionStateChanged: h.OnSessionStateChanged,
		OnError:               h.OnError,
	}
}

// WithDefaults returns a copy of h where every nil callback is replaced by a no-op.
//
// Parameters:
//   - h: User supplied hooks (may be nil)
//
// Returns:
//   - types.Hooks: Hooks safe to call without nil checks
func WithDefaults(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnUnitResult != nil {
		out.OnUnitResult = h.OnUnitResult
	}
	if h.OnSessionStateChanged != nil {
		out.OnSessionStateChanged = h.OnSessionStateChanged
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}

// OnUnitResult is a no-op implementation.
func (h *NopHooks) OnUnitResult(_ types.UnitResult) {}

// OnSessionStateChanged is a no-op implementation.
func (h *NopHooks) OnSessionStateChanged(_ context.Context, _ string, _, _ types.SessionState) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}
