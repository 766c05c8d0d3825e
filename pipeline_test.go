package framepipe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/framepipe/source"
	fptest "github.com/arloliu/framepipe/testing"
	"github.com/arloliu/framepipe/types"
)

func frames(n int) [][]byte {
	units := make([][]byte, n)
	for i := range units {
		units[i] = []byte(fmt.Sprintf("frame-%02d", i))
	}

	return units
}

func workerMetadata() types.Metadata {
	return types.Metadata{DurationMS: 12.5, WorkerID: "worker-0", Operation: "invert", MemoryMB: 64}
}

func processed(task types.UnitTask) []byte {
	return append([]byte("out-"), task.Payload...)
}

func fastConfig() Config {
	cfg := TestConfig()
	cfg.Collector.Concurrency = 3

	return cfg
}

func TestNewPipeline_Validation(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()

	_, err := NewPipeline(DefaultConfig(), nil, store)
	require.ErrorIs(t, err, ErrQueueRequired)

	_, err = NewPipeline(DefaultConfig(), queue, nil)
	require.ErrorIs(t, err, ErrStoreRequired)

	cfg := DefaultConfig()
	cfg.Collector.Concurrency = -1
	_, err = NewPipeline(cfg, queue, store)
	require.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewPipeline(Config{}, queue, store)
	require.NoError(t, err)
	require.Equal(t, 4, p.Config().Collector.Concurrency)
}

func TestPipeline_RejectsBadInput(t *testing.T) {
	p, err := NewPipeline(fastConfig(), fptest.NewMemoryQueue(), fptest.NewMemoryStore())
	require.NoError(t, err)

	_, err = p.Run(t.Context(), nil, Directive{Operation: "invert"}, fptest.NewRecordingWriter())
	require.ErrorIs(t, err, ErrEmptyArtifact)

	_, err = p.Run(t.Context(), frames(1), Directive{Operation: "invert"}, nil)
	require.ErrorIs(t, err, ErrWriterRequired)

	_, err = p.Process(t.Context(), nil, Directive{}, fptest.NewRecordingWriter())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPipeline_AllUnitsInOrder(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()
	sink := fptest.NewMemorySink()
	writer := fptest.NewRecordingWriter()

	// Workers complete units in reverse submission order.
	queue.OnSubmit(func(task types.UnitTask) {
		go func() {
			time.Sleep(time.Duration(20-task.Seq) * 5 * time.Millisecond)
			store.Complete(task.SessionID, task.Seq, processed(task), workerMetadata())
		}()
	})

	var hookCalls atomic.Int32
	p, err := NewPipeline(fastConfig(), queue, store,
		WithSink(sink),
		WithLogger(fptest.NewTestLogger(t)),
		WithHooks(&Hooks{OnUnitResult: func(UnitResult) { hookCalls.Add(1) }}),
	)
	require.NoError(t, err)

	units := frames(20)
	report, err := p.Process(t.Context(), source.NewStatic(units), Directive{Operation: "invert"}, writer)
	require.NoError(t, err)

	require.Equal(t, SessionCompleted, report.State)
	require.Equal(t, 20, report.Total)
	require.Equal(t, 20, report.Written)
	require.Empty(t, report.Failed)
	require.Empty(t, report.Missing)
	require.Equal(t, int32(20), hookCalls.Load())

	entries := writer.Entries()
	require.Len(t, entries, 20)
	for i, e := range entries {
		require.Equal(t, i, e.Seq)
		require.False(t, e.Fallback)
		require.Equal(t, append([]byte("out-"), units[i]...), e.Data)
	}

	require.Equal(t, 20, report.Summary.Progress.Completed)
	require.Equal(t, 100.0, report.Summary.Progress.Percent)
	require.Equal(t, 1, report.Summary.WorkerCount)
	require.Equal(t, 20, report.Summary.Operations["invert"])
	require.InDelta(t, 12.5, report.Summary.Progress.Latency.P50, 0.001)

	status, ok := sink.Get(report.SessionID, types.FieldStatus)
	require.True(t, ok)
	require.Equal(t, "completed", status)
	total, _ := sink.Get(report.SessionID, types.FieldTotalUnits)
	require.Equal(t, "20", total)
	pct, _ := sink.Get(report.SessionID, types.FieldProgressPct)
	require.Equal(t, "100", pct)

	done := sink.History(report.SessionID, types.FieldUnitsDone)
	require.NotEmpty(t, done)
	prev := -1
	for _, v := range done {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, prev)
		prev = n
	}
	require.Equal(t, 20, prev)
}

// Ten units, three watchers, a 2s deadline polled every 100ms. Unit 9 never
// appears; unit 8 lands first, then 0..7.
func TestPipeline_MissingUnitGetsFallbackSlot(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()
	sink := fptest.NewMemorySink()
	writer := fptest.NewRecordingWriter()

	queue.OnSubmit(func(task types.UnitTask) {
		if task.Seq != 9 {
			return
		}
		go func() {
			store.Complete(task.SessionID, 8, []byte("done-8"), workerMetadata())
			time.Sleep(50 * time.Millisecond)
			for seq := range 8 {
				store.Complete(task.SessionID, seq, []byte(fmt.Sprintf("done-%d", seq)), workerMetadata())
			}
		}()
	})

	cfg := DefaultConfig()
	cfg.Collector.Concurrency = 3
	cfg.Collector.UnitTimeout = 2 * time.Second
	cfg.Collector.PollInterval = 100 * time.Millisecond

	fallback := []byte("FALLBACK")
	p, err := NewPipeline(cfg, queue, store,
		WithSink(sink),
		WithLogger(fptest.NewTestLogger(t)),
		WithFallback(func(int, []byte) []byte { return fallback }),
	)
	require.NoError(t, err)

	start := time.Now()
	report, err := p.Run(t.Context(), frames(10), Directive{Operation: "invert"}, writer)
	elapsed := time.Since(start)
	require.NoError(t, err)

	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, writer.Seqs())
	entries := writer.Entries()
	for seq := range 9 {
		require.False(t, entries[seq].Fallback)
		require.Equal(t, []byte(fmt.Sprintf("done-%d", seq)), entries[seq].Data)
	}
	require.True(t, entries[9].Fallback)
	require.Equal(t, fallback, entries[9].Data)
	require.ErrorIs(t, entries[9].Result.Err, ErrUnitTimeout)

	require.Equal(t, SessionCompleted, report.State)
	require.Equal(t, []int{9}, report.TimedOut)
	require.Equal(t, []int{9}, report.Failed)
	require.Empty(t, report.Missing)
	require.Equal(t, 1, report.Summary.Progress.Failed)
	require.Equal(t, 10, report.Summary.Progress.Completed)

	require.GreaterOrEqual(t, elapsed, 2*time.Second)
	require.Less(t, elapsed, 5*time.Second)

	// Units 0..8 are written long before unit 9 times out.
	times := writer.WriteTimes()
	require.Len(t, times, 10)
	require.Less(t, times[8].Sub(start), time.Second)
	require.GreaterOrEqual(t, times[9].Sub(times[8]), time.Second)

	pct, _ := sink.Get(report.SessionID, types.FieldProgressPct)
	require.Equal(t, "100", pct)
	failed, _ := sink.Get(report.SessionID, types.FieldUnitsFailed)
	require.Equal(t, "1", failed)
}

func TestPipeline_DefaultFallbackIsOriginalPayload(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()
	writer := fptest.NewRecordingWriter()

	queue.OnSubmit(func(task types.UnitTask) {
		md := workerMetadata()
		if task.Seq == 1 {
			md.Error = "decoder exploded"
		}
		store.Complete(task.SessionID, task.Seq, processed(task), md)
	})

	p, err := NewPipeline(fastConfig(), queue, store)
	require.NoError(t, err)

	units := frames(3)
	report, err := p.Run(t.Context(), units, Directive{Operation: "invert"}, writer)
	require.NoError(t, err)

	entries := writer.Entries()
	require.Len(t, entries, 3)
	require.True(t, entries[1].Fallback)
	require.Equal(t, units[1], entries[1].Data)
	require.ErrorIs(t, entries[1].Result.Err, ErrWorkerFailed)
	require.Equal(t, []int{1}, report.Failed)
	require.Empty(t, report.TimedOut)
}

func TestPipeline_DegradedMetadataStillSucceeds(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()
	writer := fptest.NewRecordingWriter()

	queue.OnSubmit(func(task types.UnitTask) {
		_ = store.PutArtifact(context.Background(), task.SessionID, task.Seq, processed(task))
		store.PutRawMetadata(task.SessionID, task.Seq, []byte("{not json"))
	})

	p, err := NewPipeline(fastConfig(), queue, store)
	require.NoError(t, err)

	report, err := p.Run(t.Context(), frames(2), Directive{Operation: "invert"}, writer)
	require.NoError(t, err)
	require.Equal(t, 2, report.Degraded)
	require.Empty(t, report.Failed)
	for _, e := range writer.Entries() {
		require.False(t, e.Fallback)
		require.True(t, e.Result.Degraded)
	}
}

func TestPipeline_SubmissionFailureFailsSession(t *testing.T) {
	queue := fptest.NewMemoryQueue()
	queue.FailNext(-1, errors.New("broker down"))
	sink := fptest.NewMemorySink()

	var states []SessionState
	stateCh := make(chan SessionState, 4)
	p, err := NewPipeline(fastConfig(), queue, fptest.NewMemoryStore(),
		WithSink(sink),
		WithHooks(&Hooks{
			OnSessionStateChanged: func(_ context.Context, _ string, _, to SessionState) error {
				stateCh <- to
				return nil
			},
		}),
	)
	require.NoError(t, err)

	units := frames(3)
	writer := fptest.NewRecordingWriter()
	report, err := p.Run(t.Context(), units, Directive{Operation: "invert"}, writer)
	require.ErrorIs(t, err, ErrSubmissionFailure)
	require.NotNil(t, report)
	require.Equal(t, SessionFailed, report.State)
	require.Equal(t, 4, queue.Attempts())
	require.Equal(t, 3, report.Summary.Progress.Retries)

	// Nothing was submitted, so every slot is missing and gets its original payload.
	require.Equal(t, 3, report.Written)
	require.Equal(t, []int{0, 1, 2}, report.Missing)
	require.Equal(t, []int{0, 1, 2}, report.Failed)
	require.Equal(t, []int{0, 1, 2}, writer.Seqs())
	for i, e := range writer.Entries() {
		require.True(t, e.Missing)
		require.True(t, e.Fallback)
		require.Equal(t, units[i], e.Data)
		require.ErrorIs(t, e.Result.Err, ErrUnitMissing)
	}

	select {
	case s := <-stateCh:
		states = append(states, s)
	case <-time.After(time.Second):
		t.Fatal("state hook not called")
	}
	require.Equal(t, []SessionState{SessionFailed}, states)

	status, _ := sink.Get(report.SessionID, types.FieldStatus)
	require.Equal(t, "failed", status)
}

func TestPipeline_SubmissionFailureMidDispatchFlushesGaps(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()
	brokerDown := errors.New("broker down")

	// Units 0 and 1 are accepted and processed, then the broker goes away.
	queue.OnSubmit(func(task types.UnitTask) {
		store.Complete(task.SessionID, task.Seq, processed(task), workerMetadata())
		if task.Seq == 1 {
			queue.FailNext(-1, brokerDown)
		}
	})

	p, err := NewPipeline(fastConfig(), queue, store)
	require.NoError(t, err)

	units := frames(4)
	writer := fptest.NewRecordingWriter()
	report, err := p.Run(t.Context(), units, Directive{Operation: "invert"}, writer)
	require.ErrorIs(t, err, ErrSubmissionFailure)
	require.ErrorIs(t, err, brokerDown)
	require.Equal(t, SessionFailed, report.State)

	require.Equal(t, []int{0, 1, 2, 3}, writer.Seqs())
	entries := writer.Entries()
	for seq := range 2 {
		require.False(t, entries[seq].Fallback)
		require.Equal(t, processed(types.UnitTask{Payload: units[seq]}), entries[seq].Data)
	}
	for seq := 2; seq < 4; seq++ {
		require.True(t, entries[seq].Missing)
		require.True(t, entries[seq].Fallback)
		require.Equal(t, units[seq], entries[seq].Data)
	}

	require.Equal(t, 4, report.Written)
	require.Equal(t, []int{2, 3}, report.Missing)
	require.Equal(t, []int{2, 3}, report.Failed)
	require.Equal(t, 4, report.Summary.Progress.Completed)
	require.Equal(t, 2, report.Summary.Progress.Failed)
}

func TestPipeline_WriterErrorStopsSession(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()
	queue.OnSubmit(func(task types.UnitTask) {
		store.Complete(task.SessionID, task.Seq, processed(task), workerMetadata())
	})

	writer := fptest.NewRecordingWriter()
	diskFull := errors.New("disk full")
	writer.FailAt(2, diskFull)

	p, err := NewPipeline(fastConfig(), queue, store)
	require.NoError(t, err)

	report, err := p.Run(t.Context(), frames(5), Directive{Operation: "invert"}, writer)
	require.ErrorIs(t, err, diskFull)
	require.Equal(t, SessionFailed, report.State)
	require.Equal(t, []int{0, 1}, writer.Seqs())
	require.Equal(t, 2, report.Written)
}

func TestPipeline_AbortAndRegistry(t *testing.T) {
	cfg := fastConfig()
	cfg.Collector.UnitTimeout = time.Minute

	p, err := NewPipeline(cfg, fptest.NewMemoryQueue(), fptest.NewMemoryStore(),
		WithSessionIDGenerator(func() string { return "session-1" }))
	require.NoError(t, err)

	_, err = p.Progress("nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, p.Abort("nope"), ErrSessionNotFound)

	type outcome struct {
		report *Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := p.Run(context.Background(), frames(4), Directive{Operation: "invert"}, fptest.NewRecordingWriter())
		done <- outcome{report, err}
	}()

	require.Eventually(t, func() bool {
		sessions := p.Sessions()
		return len(sessions) == 1 && sessions[0].State == SessionActive
	}, 5*time.Second, 10*time.Millisecond)

	snap, err := p.Progress("session-1")
	require.NoError(t, err)
	require.Equal(t, 4, snap.Total)
	require.Zero(t, snap.Completed)
	require.False(t, p.Forget("session-1"))

	require.NoError(t, p.Abort("session-1"))

	select {
	case out := <-done:
		require.ErrorIs(t, out.err, ErrSessionAborted)
		require.Equal(t, SessionAborted, out.report.State)
		require.Equal(t, 4, out.report.Written)
		require.Equal(t, []int{0, 1, 2, 3}, out.report.Missing)
	case <-time.After(5 * time.Second):
		t.Fatal("aborted session did not return")
	}

	require.ErrorIs(t, p.Abort("session-1"), types.ErrInvalidTransition)
	require.Equal(t, SessionAborted, p.Sessions()[0].State)
	require.True(t, p.Forget("session-1"))
	require.Empty(t, p.Sessions())
}

func TestPipeline_ContextCancelAborts(t *testing.T) {
	cfg := fastConfig()
	cfg.Collector.UnitTimeout = time.Minute

	p, err := NewPipeline(cfg, fptest.NewMemoryQueue(), fptest.NewMemoryStore())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	writer := fptest.NewRecordingWriter()
	report, err := p.Run(ctx, frames(3), Directive{Operation: "invert"}, writer)
	require.ErrorIs(t, err, ErrSessionAborted)
	require.Equal(t, SessionAborted, report.State)
	require.Equal(t, []int{0, 1, 2}, writer.Seqs())
	require.Equal(t, []int{0, 1, 2}, report.Missing)
}

func TestPipeline_AbortFlushesBufferedResults(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()

	// Unit 0 never completes, so 1 and 2 wait in the reorder buffer.
	queue.OnSubmit(func(task types.UnitTask) {
		if task.Seq == 1 || task.Seq == 2 {
			store.Complete(task.SessionID, task.Seq, processed(task), workerMetadata())
		}
	})

	cfg := fastConfig()
	cfg.Collector.UnitTimeout = time.Minute

	p, err := NewPipeline(cfg, queue, store,
		WithSessionIDGenerator(func() string { return "s1" }))
	require.NoError(t, err)

	units := frames(4)
	writer := fptest.NewRecordingWriter()
	type outcome struct {
		report *Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := p.Run(context.Background(), units, Directive{Operation: "invert"}, writer)
		done <- outcome{report, err}
	}()

	require.Eventually(t, func() bool {
		snap, err := p.Progress("s1")
		return err == nil && snap.Completed == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Empty(t, writer.Entries())

	require.NoError(t, p.Abort("s1"))

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("aborted session did not return")
	}

	require.ErrorIs(t, out.err, ErrSessionAborted)
	require.Equal(t, SessionAborted, out.report.State)
	require.Equal(t, []int{0, 1, 2, 3}, writer.Seqs())

	entries := writer.Entries()
	require.True(t, entries[0].Missing)
	require.Equal(t, units[0], entries[0].Data)
	for _, seq := range []int{1, 2} {
		require.False(t, entries[seq].Fallback)
		require.Equal(t, processed(types.UnitTask{Payload: units[seq]}), entries[seq].Data)
	}
	require.True(t, entries[3].Missing)

	require.Equal(t, []int{0, 3}, out.report.Missing)
	require.Equal(t, []int{0, 3}, out.report.Failed)
	require.Equal(t, 4, out.report.Written)
	require.Equal(t, 2, out.report.Summary.Progress.Failed)
}

// unreadableStore fails ReadArtifact for one unit while reporting it complete.
type unreadableStore struct {
	*fptest.MemoryStore
	seq int
}

func (s unreadableStore) ReadArtifact(ctx context.Context, sessionID string, seq int) ([]byte, error) {
	if seq == s.seq {
		return nil, fmt.Errorf("read unit %d: %w", seq, ErrStoreUnavailable)
	}

	return s.MemoryStore.ReadArtifact(ctx, sessionID, seq)
}

func TestPipeline_UnreadableArtifactCountsAsFailure(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()
	sink := fptest.NewMemorySink()
	queue.OnSubmit(func(task types.UnitTask) {
		store.Complete(task.SessionID, task.Seq, processed(task), workerMetadata())
	})

	p, err := NewPipeline(fastConfig(), queue, unreadableStore{MemoryStore: store, seq: 1}, WithSink(sink))
	require.NoError(t, err)

	units := frames(3)
	writer := fptest.NewRecordingWriter()
	report, err := p.Run(t.Context(), units, Directive{Operation: "invert"}, writer)
	require.NoError(t, err)

	entries := writer.Entries()
	require.Len(t, entries, 3)
	require.True(t, entries[1].Fallback)
	require.Equal(t, units[1], entries[1].Data)
	require.Equal(t, []int{1}, report.Failed)
	require.Equal(t, 1, report.Summary.Progress.Failed)
	require.Equal(t, 3, report.Summary.Progress.Completed)

	failed, _ := sink.Get(report.SessionID, types.FieldUnitsFailed)
	require.Equal(t, "1", failed)
}

func TestPipeline_ConcurrentSessions(t *testing.T) {
	store := fptest.NewMemoryStore()
	queue := fptest.NewMemoryQueue()
	queue.OnSubmit(func(task types.UnitTask) {
		go store.Complete(task.SessionID, task.Seq, processed(task), workerMetadata())
	})

	p, err := NewPipeline(fastConfig(), queue, store)
	require.NoError(t, err)

	const sessions = 4
	errs := make(chan error, sessions)
	writers := make([]*fptest.RecordingWriter, sessions)
	for i := range sessions {
		writers[i] = fptest.NewRecordingWriter()
		go func(w *fptest.RecordingWriter) {
			_, err := p.Run(t.Context(), frames(8), Directive{Operation: "invert"}, w)
			errs <- err
		}(writers[i])
	}
	for range sessions {
		require.NoError(t, <-errs)
	}

	for _, w := range writers {
		require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, w.Seqs())
	}
	require.Len(t, p.Sessions(), sessions)
}
