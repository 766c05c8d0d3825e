package worker

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/arloliu/framepipe/types"
)

// Operation transforms one unit payload.
type Operation func(ctx context.Context, payload []byte, params map[string]string) ([]byte, error)

// Built-in operation names.
const (
	OpIdentity = "identity"
	OpInvert   = "invert"
	OpChecksum = "checksum"
)

// Registry maps operation names to implementations. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry returns a registry holding the built-in operations.
func NewRegistry() *Registry {
	r := &Registry{ops: make(map[string]Operation)}
	r.Register(OpIdentity, identity)
	r.Register(OpInvert, invert)
	r.Register(OpChecksum, checksum)

	return r
}

// Register adds or replaces an operation.
func (r *Registry) Register(name string, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops[name] = op
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownOperation, name)
	}

	return op, nil
}

// Names returns the registered operation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

func identity(_ context.Context, payload []byte, _ map[string]string) ([]byte, error) {
	return slices.Clone(payload), nil
}

// invert flips every bit. A "mask" param (0-255) limits the flip to those bits.
func invert(_ context.Context, payload []byte, params map[string]string) ([]byte, error) {
	mask := byte(0xFF)
	if v, ok := params["mask"]; ok {
		m, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid mask %q: %w", v, err)
		}
		mask = byte(m)
	}

	out := make([]byte, len(payload))
	for i, b := range payload {
		out[i] = b ^ mask
	}

	return out, nil
}

// checksum replaces the payload with its 8-byte big-endian xxh3 digest.
func checksum(_ context.Context, payload []byte, _ map[string]string) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, xxh3.Hash(payload)), nil
}
