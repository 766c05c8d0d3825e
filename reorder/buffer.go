package reorder

import (
	"fmt"
	"time"

	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/internal/metrics"
	"github.com/arloliu/framepipe/types"
)

// EmitFunc receives results in strictly ascending sequence order.
type EmitFunc func(result types.UnitResult) error

// Option configures a Buffer.
type Option func(*Buffer)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(b *Buffer) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.ReorderMetrics) Option {
	return func(b *Buffer) {
		b.metrics = m
	}
}

// WithSessionID sets the session ID used for synthesized missing results.
func WithSessionID(sessionID string) Option {
	return func(b *Buffer) {
		b.sessionID = sessionID
	}
}

// Buffer emits unit results in ascending sequence order, exactly once each.
//
// Every sequence number below Next() has been emitted and removed from the
// pending map.
type Buffer struct {
	emit       EmitFunc
	next       int
	pending    map[int]types.UnitResult
	duplicates int
	sessionID  string

	logger  types.Logger
	metrics types.ReorderMetrics
}

// New creates a Buffer that starts at sequence number 0.
//
// Parameters:
//   - emit: Downstream consumer; an error stops emission and is returned
//   - opts: Optional configuration
//
// Returns:
//   - *Buffer: Empty buffer
func New(emit EmitFunc, opts ...Option) *Buffer {
	b := &Buffer{
		emit:    emit,
		pending: make(map[int]types.UnitResult),
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Push accepts one result.
//
// A result at the cursor is emitted together with every buffered result that
// becomes contiguous. A result ahead of the cursor is held; the first arrival
// for a sequence number wins. A result behind the cursor is a duplicate and
// is discarded.
//
// Returns:
//   - int: Number of results emitted by this call
//   - error: Emitter error; the failed result stays buffered and the cursor
//     does not move past it
func (b *Buffer) Push(result types.UnitResult) (int, error) {
	seq := result.Seq
	if seq < b.next {
		b.duplicate(seq)
		return 0, nil
	}
	if _, ok := b.pending[seq]; ok {
		b.duplicate(seq)
		return 0, nil
	}

	b.pending[seq] = result
	emitted, err := b.drain()
	b.metrics.SetReorderBuffered(len(b.pending))

	return emitted, err
}

// Finalize flushes the buffer for a session of total units.
//
// Buffered results are emitted in order and every gap below total is filled
// with a synthesized failure wrapping ErrUnitMissing, so the consumer sees
// exactly total entries. Buffered results at or above total are dropped.
//
// Returns:
//   - []int: Sequence numbers reported as missing, ascending
//   - error: Emitter error; Finalize may be called again after it
func (b *Buffer) Finalize(total int) ([]int, error) {
	var missing []int
	for b.next < total {
		if _, ok := b.pending[b.next]; !ok {
			seq := b.next
			b.pending[seq] = b.missingResult(seq)
			missing = append(missing, seq)
			b.metrics.RecordMissingUnit()
			b.logger.Warn("unit missing at finalize", "session_id", b.sessionID, "seq", seq)
		}

		if _, err := b.drain(); err != nil {
			b.metrics.SetReorderBuffered(len(b.pending))
			return missing, err
		}
	}

	for seq := range b.pending {
		if seq >= total {
			b.logger.Warn("dropping result beyond session total", "session_id", b.sessionID, "seq", seq, "total", total)
			delete(b.pending, seq)
		}
	}
	b.metrics.SetReorderBuffered(len(b.pending))

	return missing, nil
}

// Next returns the next sequence number to be emitted.
func (b *Buffer) Next() int {
	return b.next
}

// Buffered returns the number of results held for a later turn.
func (b *Buffer) Buffered() int {
	return len(b.pending)
}

// Duplicates returns the number of discarded duplicate results.
func (b *Buffer) Duplicates() int {
	return b.duplicates
}

func (b *Buffer) drain() (int, error) {
	emitted := 0
	for {
		result, ok := b.pending[b.next]
		if !ok {
			return emitted, nil
		}
		if err := b.emit(result); err != nil {
			return emitted, fmt.Errorf("emit unit %d: %w", b.next, err)
		}
		delete(b.pending, b.next)
		b.next++
		emitted++
	}
}

func (b *Buffer) duplicate(seq int) {
	b.duplicates++
	b.metrics.RecordDuplicateResult()
	b.logger.Debug("discarding duplicate result", "session_id", b.sessionID, "seq", seq, "next", b.next)
}

func (b *Buffer) missingResult(seq int) types.UnitResult {
	md := types.DefaultMetadata()
	md.Error = types.ErrUnitMissing.Error()

	return types.UnitResult{
		SessionID:  b.sessionID,
		Seq:        seq,
		Outcome:    types.OutcomeFailure,
		Metadata:   md,
		Err:        fmt.Errorf("unit %d never resolved: %w", seq, types.ErrUnitMissing),
		ResolvedAt: time.Now(),
	}
}
