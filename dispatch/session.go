package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/framepipe/types"
)

// Session is one end-to-end processing request for one artifact.
//
// Tasks are immutable after creation. State starts at SessionActive and moves
// exactly once to a terminal state.
type Session struct {
	id        string
	directive types.Directive
	createdAt time.Time
	tasks     []types.UnitTask

	onTransition func(s *Session, from, to types.SessionState)

	mu        sync.Mutex
	state     types.SessionState
	endedAt   time.Time
	submitted int
	retries   int
	err       error
}

func newSession(id string, directive types.Directive, tasks []types.UnitTask, createdAt time.Time) *Session {
	return &Session{
		id:        id,
		directive: directive,
		createdAt: createdAt,
		tasks:     tasks,
		state:     types.SessionActive,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Total returns the number of units in the artifact.
func (s *Session) Total() int {
	return len(s.tasks)
}

// Directive returns the processing directive applied to every unit.
func (s *Session) Directive() types.Directive {
	return s.directive
}

// CreatedAt returns the session start time used for throughput computation.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Manifest returns the session's tasks without payloads, in sequence order.
func (s *Session) Manifest() []types.UnitTask {
	out := make([]types.UnitTask, len(s.tasks))
	for i, task := range s.tasks {
		task.Payload = nil
		out[i] = task
	}

	return out
}

// Payload returns the original payload of a unit, or nil for an unknown seq.
func (s *Session) Payload(seq int) []byte {
	if seq < 0 || seq >= len(s.tasks) {
		return nil
	}

	return s.tasks[seq].Payload
}

// Pending returns the sequence numbers accepted by the queue, ascending.
//
// After a successful dispatch this is 0..Total()-1. After a failed or
// aborted dispatch it holds only the units submitted before the failure.
func (s *Session) Pending() []int {
	s.mu.Lock()
	n := s.submitted
	s.mu.Unlock()

	seqs := make([]int, n)
	for i := range seqs {
		seqs[i] = i
	}

	return seqs
}

// Submitted returns the number of units accepted by the queue.
func (s *Session) Submitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.submitted
}

// Retries returns the number of submission retries performed.
func (s *Session) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retries
}

// State returns the current session state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Info returns an immutable snapshot of the session.
func (s *Session) Info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return types.SessionInfo{
		ID:        s.id,
		Total:     len(s.tasks),
		State:     s.state,
		Directive: s.directive,
		CreatedAt: s.createdAt,
		EndedAt:   s.endedAt,
	}
}

// Complete marks the session completed.
func (s *Session) Complete() error {
	return s.transition(types.SessionCompleted, nil)
}

// Abort marks the session aborted with the given cause.
func (s *Session) Abort(cause error) error {
	return s.transition(types.SessionAborted, cause)
}

// Fail marks the session failed with the given cause.
func (s *Session) Fail(cause error) error {
	return s.transition(types.SessionFailed, cause)
}

func (s *Session) transition(to types.SessionState, cause error) error {
	s.mu.Lock()
	from := s.state
	if !from.CanTransitionTo(to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, from, to)
	}
	s.state = to
	s.err = cause
	s.endedAt = time.Now()
	hook := s.onTransition
	s.mu.Unlock()

	if hook != nil {
		hook(s, from, to)
	}

	return nil
}

func (s *Session) markSubmitted() {
	s.mu.Lock()
	s.submitted++
	s.mu.Unlock()
}

func (s *Session) markRetry() {
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}
