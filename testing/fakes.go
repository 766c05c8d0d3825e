package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/framepipe/types"
)

// MemoryStore is an in-memory ResultStore and ResultWriter.
//
// Keys are write-once: the first write for a unit wins and later writes are
// ignored. Lookup failures can be injected with FailLookups.
type MemoryStore struct {
	artifacts *xsync.Map[string, []byte]
	metadata  *xsync.Map[string, []byte]

	lookups     atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
	failLookups atomic.Int64
}

var (
	_ types.ResultStore  = (*MemoryStore)(nil)
	_ types.ResultWriter = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: xsync.NewMap[string, []byte](),
		metadata:  xsync.NewMap[string, []byte](),
	}
}

// PutArtifact stores the artifact for a unit.
func (s *MemoryStore) PutArtifact(_ context.Context, sessionID string, seq int, data []byte) error {
	s.artifacts.LoadOrStore(types.UnitKey(sessionID, seq), append([]byte(nil), data...))
	return nil
}

// PutMetadata stores the JSON-encoded metadata for a unit.
func (s *MemoryStore) PutMetadata(_ context.Context, sessionID string, seq int, md types.Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	s.metadata.LoadOrStore(types.UnitKey(sessionID, seq), raw)

	return nil
}

// PutRawMetadata stores raw metadata bytes, which need not be valid JSON.
func (s *MemoryStore) PutRawMetadata(sessionID string, seq int, raw []byte) {
	s.metadata.LoadOrStore(types.UnitKey(sessionID, seq), append([]byte(nil), raw...))
}

// Complete writes both keys for a unit, artifact first.
func (s *MemoryStore) Complete(sessionID string, seq int, data []byte, md types.Metadata) {
	ctx := context.Background()
	_ = s.PutArtifact(ctx, sessionID, seq, data)
	_ = s.PutMetadata(ctx, sessionID, seq, md)
}

// FailLookups makes the next n Lookup calls return ErrStoreUnavailable.
func (s *MemoryStore) FailLookups(n int) {
	s.failLookups.Store(int64(n))
}

// Lookup reports which keys exist for a unit.
func (s *MemoryStore) Lookup(_ context.Context, sessionID string, seq int) (types.StoreEntry, error) {
	s.lookups.Add(1)
	cur := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		peak := s.maxInflight.Load()
		if cur <= peak || s.maxInflight.CompareAndSwap(peak, cur) {
			break
		}
	}

	if s.failLookups.Add(-1) >= 0 {
		return types.StoreEntry{}, fmt.Errorf("memory store: injected failure: %w", types.ErrStoreUnavailable)
	}
	s.failLookups.CompareAndSwap(-1, 0)

	key := types.UnitKey(sessionID, seq)
	entry := types.StoreEntry{ArtifactRef: key}
	_, entry.ArtifactPresent = s.artifacts.Load(key)
	if raw, ok := s.metadata.Load(key); ok {
		entry.MetadataPresent = true
		entry.Metadata = raw
	}

	return entry, nil
}

// ReadArtifact returns the stored artifact for a unit.
func (s *MemoryStore) ReadArtifact(_ context.Context, sessionID string, seq int) ([]byte, error) {
	data, ok := s.artifacts.Load(types.UnitKey(sessionID, seq))
	if !ok {
		return nil, fmt.Errorf("memory store: unit %d: %w", seq, types.ErrUnitMissing)
	}

	return data, nil
}

// Lookups returns the total number of Lookup calls.
func (s *MemoryStore) Lookups() int64 {
	return s.lookups.Load()
}

// MaxConcurrentLookups returns the peak number of simultaneous Lookup calls.
func (s *MemoryStore) MaxConcurrentLookups() int64 {
	return s.maxInflight.Load()
}

// MemoryQueue is an in-memory TaskQueue.
//
// Failures can be injected with FailNext; OnSubmit lets a test play the role
// of a worker by reacting to each accepted task.
type MemoryQueue struct {
	mu       sync.Mutex
	tasks    []types.UnitTask
	attempts int
	failNext int
	failErr  error
	onSubmit func(types.UnitTask)
}

var _ types.TaskQueue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// FailNext makes the next n Submit calls fail with err. A negative n fails every call.
func (q *MemoryQueue) FailNext(n int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.failNext = n
	q.failErr = err
}

// OnSubmit registers a callback invoked, outside the lock, for each accepted task.
func (q *MemoryQueue) OnSubmit(fn func(types.UnitTask)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.onSubmit = fn
}

// Submit accepts a task unless a failure is pending.
func (q *MemoryQueue) Submit(ctx context.Context, task types.UnitTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	q.attempts++
	if q.failNext != 0 {
		if q.failNext > 0 {
			q.failNext--
		}
		err := q.failErr
		q.mu.Unlock()

		return err
	}
	q.tasks = append(q.tasks, task)
	fn := q.onSubmit
	q.mu.Unlock()

	if fn != nil {
		fn(task)
	}

	return nil
}

// Tasks returns a copy of the accepted tasks in submission order.
func (q *MemoryQueue) Tasks() []types.UnitTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]types.UnitTask(nil), q.tasks...)
}

// Attempts returns the number of Submit calls, including failed ones.
func (q *MemoryQueue) Attempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.attempts
}

// MemorySink is an in-memory ProgressSink that keeps every value written.
type MemorySink struct {
	mu      sync.Mutex
	history map[string][]string
	failErr error
}

var _ types.ProgressSink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{history: make(map[string][]string)}
}

// FailWith makes every subsequent Set return err. A nil err clears the failure.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failErr = err
}

// Set records a field value.
func (s *MemorySink) Set(_ context.Context, sessionID, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	key := sessionID + ":" + field
	s.history[key] = append(s.history[key], value)

	return nil
}

// Get returns the latest value of a field.
func (s *MemorySink) Get(sessionID, field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.history[sessionID+":"+field]
	if len(values) == 0 {
		return "", false
	}

	return values[len(values)-1], true
}

// History returns every value written to a field, oldest first.
func (s *MemorySink) History(sessionID, field string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.history[sessionID+":"+field]...)
}

// RecordingWriter is a Writer that keeps the ordered output in memory.
type RecordingWriter struct {
	mu      sync.Mutex
	entries []types.OutputEntry
	times   []time.Time
	failSeq int
	failErr error
}

var _ types.Writer = (*RecordingWriter)(nil)

// NewRecordingWriter creates an empty recording writer.
func NewRecordingWriter() *RecordingWriter {
	return &RecordingWriter{failSeq: -1}
}

// FailAt makes WriteUnit return err for the given sequence number.
func (w *RecordingWriter) FailAt(seq int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.failSeq = seq
	w.failErr = err
}

// WriteUnit records the entry.
func (w *RecordingWriter) WriteUnit(_ context.Context, entry types.OutputEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.Seq == w.failSeq {
		return w.failErr
	}
	w.entries = append(w.entries, entry)
	w.times = append(w.times, time.Now())

	return nil
}

// WriteTimes returns when each recorded entry was written, in write order.
func (w *RecordingWriter) WriteTimes() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]time.Time(nil), w.times...)
}

// Entries returns a copy of the recorded entries in write order.
func (w *RecordingWriter) Entries() []types.OutputEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]types.OutputEntry(nil), w.entries...)
}

// Seqs returns the recorded sequence numbers in write order.
func (w *RecordingWriter) Seqs() []int {
	w.mu.Lock()
	defer w.mu.Unlock()

	seqs := make([]int, len(w.entries))
	for i, e := range w.entries {
		seqs[i] = e.Seq
	}

	return seqs
}
