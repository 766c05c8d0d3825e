package collector

import (
	"context"
	"io"
	"iter"
	"sync"

	"github.com/arloliu/framepipe/types"
)

// Stream is a single-consumption sequence of results for one Request.
//
// To collect again, issue a new Stream call with the original pending set.
type Stream struct {
	ctx       context.Context
	sessionID string
	onResult  func(types.UnitResult)
	total     int

	results chan types.UnitResult
	stop    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	stopOnce sync.Once

	// mu serializes emission: the stop check, the callback, the remaining
	// count and the channel send happen as one step.
	mu        sync.Mutex
	remaining int
}

func newStream(ctx context.Context, req Request, total int) *Stream {
	s := &Stream{
		ctx:       ctx,
		sessionID: req.SessionID,
		onResult:  req.OnResult,
		total:     total,
		results:   make(chan types.UnitResult, total),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		remaining: total,
	}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.Stop()
			case <-s.done:
			}
		}()
	}

	return s
}

// Results returns the result channel. It is closed once every watcher has
// returned, either because all units resolved or because the stream stopped.
func (s *Stream) Results() <-chan types.UnitResult {
	return s.results
}

// Next blocks for the next result.
//
// Returns:
//   - types.UnitResult: The next result in completion order
//   - error: io.EOF once the stream is exhausted, or ctx.Err()
func (s *Stream) Next(ctx context.Context) (types.UnitResult, error) {
	select {
	case r, ok := <-s.results:
		if !ok {
			return types.UnitResult{}, io.EOF
		}

		return r, nil
	case <-ctx.Done():
		return types.UnitResult{}, ctx.Err()
	}
}

// All returns an iterator over the remaining results. Breaking out of the
// loop stops the stream.
func (s *Stream) All() iter.Seq[types.UnitResult] {
	return func(yield func(types.UnitResult) bool) {
		for r := range s.results {
			if !yield(r) {
				s.Stop()
				return
			}
		}
	}
}

// Stop abandons every outstanding watcher. In-flight store checks finish,
// but no callback fires and nothing is emitted after Stop returns. Results
// already on the channel stay readable.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.stop)
		s.mu.Unlock()
	})
}

// Stopped reports whether Stop was called or the context ended.
func (s *Stream) Stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return s.ctx.Err() != nil
	}
}

// Wait blocks until every watcher has returned.
func (s *Stream) Wait() {
	<-s.done
}

// Total returns the number of distinct units being collected.
func (s *Stream) Total() int {
	return s.total
}

// Remaining returns the number of units not yet emitted.
func (s *Stream) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remaining
}

func (s *Stream) emit(r types.UnitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Stopped() {
		return
	}

	if s.onResult != nil {
		s.onResult(r)
	}
	s.remaining--
	s.results <- r
}
