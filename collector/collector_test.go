package collector

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fptest "github.com/arloliu/framepipe/testing"
	"github.com/arloliu/framepipe/types"
)

const session = "session-1"

func seqs(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}

	return out
}

func completeAll(store *fptest.MemoryStore, n int) {
	for seq := range n {
		store.Complete(session, seq, []byte{byte(seq)}, types.Metadata{
			DurationMS: float64(10 + seq),
			WorkerID:   "worker-1",
			Operation:  "invert",
			MemoryMB:   12.5,
		})
	}
}

func fastConfig(w int) Config {
	return Config{Concurrency: w, PollInterval: 10 * time.Millisecond, UnitTimeout: 2 * time.Second}
}

func TestCollectAll_AllPresent(t *testing.T) {
	store := fptest.NewMemoryStore()
	completeAll(store, 8)
	recorder := fptest.NewRecordingMetrics()

	c := New(store, fastConfig(3), WithMetrics(recorder), WithLogger(fptest.NewTestLogger(t)))
	results, err := c.CollectAll(t.Context(), Request{SessionID: session, Pending: seqs(8)})
	require.NoError(t, err)
	require.Len(t, results, 8)

	seen := make(map[int]bool)
	for _, r := range results {
		require.True(t, r.Succeeded())
		require.NoError(t, r.Err)
		require.False(t, r.Degraded)
		require.Equal(t, session, r.SessionID)
		require.Equal(t, types.UnitKey(session, r.Seq), r.ArtifactRef)
		require.Equal(t, "worker-1", r.Metadata.WorkerID)
		require.InDelta(t, float64(10+r.Seq), r.Metadata.DurationMS, 0)
		require.False(t, r.ResolvedAt.IsZero())
		seen[r.Seq] = true
	}
	require.Len(t, seen, 8)
	require.Equal(t, 8, recorder.Resolved("success"))
	require.Zero(t, recorder.ActiveWatchers())
}

func TestCollectAll_EmptyPending(t *testing.T) {
	c := New(fptest.NewMemoryStore(), fastConfig(3))

	results, err := c.CollectAll(t.Context(), Request{SessionID: session})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestCollectAll_DuplicatePendingWatchedOnce(t *testing.T) {
	store := fptest.NewMemoryStore()
	completeAll(store, 2)
	c := New(store, fastConfig(4))

	results, err := c.CollectAll(t.Context(), Request{SessionID: session, Pending: []int{0, 1, 0, 1, 1}})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestStream_InvalidRequest(t *testing.T) {
	c := New(fptest.NewMemoryStore(), fastConfig(1))

	_, err := c.Stream(t.Context(), Request{Pending: []int{0}})
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = c.Stream(t.Context(), Request{SessionID: session, Pending: []int{0, -1}})
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestCollector_ConcurrencyBound(t *testing.T) {
	store := fptest.NewMemoryStore()
	recorder := fptest.NewRecordingMetrics()
	c := New(store, Config{Concurrency: 3, PollInterval: 5 * time.Millisecond, UnitTimeout: 5 * time.Second},
		WithMetrics(recorder))

	const n = 30
	go func() {
		for seq := n - 1; seq >= 0; seq-- {
			time.Sleep(2 * time.Millisecond)
			store.Complete(session, seq, []byte{1}, types.Metadata{WorkerID: "w"})
		}
	}()

	results, err := c.CollectAll(t.Context(), Request{SessionID: session, Pending: seqs(n)})
	require.NoError(t, err)
	require.Len(t, results, n)

	require.LessOrEqual(t, store.MaxConcurrentLookups(), int64(3))
	require.LessOrEqual(t, recorder.MaxActiveWatchers(), 3)
	require.Positive(t, recorder.MaxActiveWatchers())
}

func TestCollector_TimeoutIsData(t *testing.T) {
	store := fptest.NewMemoryStore()
	for seq := 1; seq < 4; seq++ {
		store.Complete(session, seq, []byte{1}, types.Metadata{WorkerID: "w"})
	}

	timeout := 200 * time.Millisecond
	interval := 20 * time.Millisecond
	recorder := fptest.NewRecordingMetrics()
	c := New(store, Config{Concurrency: 2, PollInterval: interval, UnitTimeout: timeout}, WithMetrics(recorder))

	start := time.Now()
	results, err := c.CollectAll(t.Context(), Request{SessionID: session, Pending: seqs(4)})
	require.NoError(t, err)
	require.Len(t, results, 4)

	// The three present units resolve while unit 0 is still waiting.
	for _, r := range results[:3] {
		require.True(t, r.Succeeded())
		require.Less(t, r.ResolvedAt.Sub(start), timeout)
	}

	last := results[3]
	require.Equal(t, 0, last.Seq)
	require.Equal(t, types.OutcomeFailure, last.Outcome)
	require.True(t, last.TimedOut())
	require.ErrorIs(t, last.Err, types.ErrUnitTimeout)
	require.GreaterOrEqual(t, last.Waited, timeout)
	require.Less(t, last.Waited, timeout+interval+150*time.Millisecond)
	require.Equal(t, types.UnknownValue, last.Metadata.WorkerID)
	require.Equal(t, 1, recorder.Resolved("failure"))
}

func TestCollector_ArtifactWithoutMetadataKeepsWaiting(t *testing.T) {
	store := fptest.NewMemoryStore()
	require.NoError(t, store.PutArtifact(t.Context(), session, 0, []byte("partial")))

	c := New(store, fastConfig(1))
	stream, err := c.Stream(t.Context(), Request{SessionID: session, Pending: []int{0}})
	require.NoError(t, err)
	defer stream.Stop()

	select {
	case r := <-stream.Results():
		t.Fatalf("unit resolved without metadata: %+v", r)
	case <-time.After(80 * time.Millisecond):
	}

	require.NoError(t, store.PutMetadata(t.Context(), session, 0, types.Metadata{WorkerID: "late"}))

	r, err := stream.Next(t.Context())
	require.NoError(t, err)
	require.True(t, r.Succeeded())
	require.Equal(t, "late", r.Metadata.WorkerID)
	require.GreaterOrEqual(t, r.Waited, 80*time.Millisecond)

	_, err = stream.Next(t.Context())
	require.ErrorIs(t, err, io.EOF)
}

func TestCollector_MetadataPolicy(t *testing.T) {
	t.Run("unparsable metadata degrades to success", func(t *testing.T) {
		store := fptest.NewMemoryStore()
		require.NoError(t, store.PutArtifact(t.Context(), session, 0, []byte{1}))
		store.PutRawMetadata(session, 0, []byte("{not json"))
		recorder := fptest.NewRecordingMetrics()

		c := New(store, fastConfig(1), WithMetrics(recorder))
		results, err := c.CollectAll(t.Context(), Request{SessionID: session, Pending: []int{0}})
		require.NoError(t, err)
		require.Len(t, results, 1)

		r := results[0]
		require.True(t, r.Succeeded())
		require.True(t, r.Degraded)
		require.NoError(t, r.Err)
		require.Equal(t, types.DefaultMetadata(), r.Metadata)
		require.Equal(t, 1, recorder.Degraded())
	})

	t.Run("worker error field is a failure", func(t *testing.T) {
		store := fptest.NewMemoryStore()
		store.Complete(session, 0, []byte("original"), types.Metadata{WorkerID: "w-2", Error: "filter crashed"})

		c := New(store, fastConfig(1))
		results, err := c.CollectAll(t.Context(), Request{SessionID: session, Pending: []int{0}})
		require.NoError(t, err)
		require.Len(t, results, 1)

		r := results[0]
		require.Equal(t, types.OutcomeFailure, r.Outcome)
		require.ErrorIs(t, r.Err, types.ErrWorkerFailed)
		require.False(t, r.TimedOut())
		require.Equal(t, "w-2", r.Metadata.WorkerID)
	})

	t.Run("empty identity fields become unknown", func(t *testing.T) {
		store := fptest.NewMemoryStore()
		require.NoError(t, store.PutArtifact(t.Context(), session, 0, []byte{1}))
		store.PutRawMetadata(session, 0, []byte(`{"duration_ms": 4.5}`))

		c := New(store, fastConfig(1))
		results, err := c.CollectAll(t.Context(), Request{SessionID: session, Pending: []int{0}})
		require.NoError(t, err)
		require.False(t, results[0].Degraded)
		require.Equal(t, types.UnknownValue, results[0].Metadata.WorkerID)
		require.Equal(t, types.UnknownValue, results[0].Metadata.Operation)
		require.InDelta(t, 4.5, results[0].Metadata.DurationMS, 0)
	})
}

func TestCollector_StoreErrorsAreRetried(t *testing.T) {
	store := fptest.NewMemoryStore()
	completeAll(store, 1)
	store.FailLookups(3)

	c := New(store, fastConfig(1))
	results, err := c.CollectAll(t.Context(), Request{SessionID: session, Pending: []int{0}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Succeeded())
	require.GreaterOrEqual(t, store.Lookups(), int64(4))
}

func TestStream_CallbackBeforeEmission(t *testing.T) {
	store := fptest.NewMemoryStore()
	completeAll(store, 10)

	var mu sync.Mutex
	notified := make(map[int]bool)
	c := New(store, fastConfig(4))
	stream, err := c.Stream(t.Context(), Request{
		SessionID: session,
		Pending:   seqs(10),
		OnResult: func(r types.UnitResult) {
			mu.Lock()
			defer mu.Unlock()
			notified[r.Seq] = true
		},
	})
	require.NoError(t, err)

	count := 0
	for r := range stream.Results() {
		mu.Lock()
		require.True(t, notified[r.Seq], "callback must run before emission")
		mu.Unlock()
		count++
	}
	require.Equal(t, 10, count)
	require.Zero(t, stream.Remaining())
}

func TestStream_Stop(t *testing.T) {
	store := fptest.NewMemoryStore()
	completeAll(store, 1)

	var mu sync.Mutex
	calls := 0
	c := New(store, Config{Concurrency: 2, PollInterval: 10 * time.Millisecond, UnitTimeout: time.Minute})
	stream, err := c.Stream(t.Context(), Request{
		SessionID: session,
		Pending:   seqs(5),
		OnResult: func(types.UnitResult) {
			mu.Lock()
			defer mu.Unlock()
			calls++
		},
	})
	require.NoError(t, err)

	first, err := stream.Next(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, first.Seq)

	stream.Stop()
	require.True(t, stream.Stopped())

	// Units completed after stop are never reported.
	completeAll(store, 5)

	done := make(chan struct{})
	go func() {
		stream.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchers did not return after stop")
	}

	_, err = stream.Next(t.Context())
	require.ErrorIs(t, err, io.EOF)

	mu.Lock()
	require.Equal(t, 1, calls)
	mu.Unlock()
	require.Equal(t, 4, stream.Remaining())
}

func TestCollectAll_ContextCancel(t *testing.T) {
	store := fptest.NewMemoryStore()
	completeAll(store, 2)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	c := New(store, Config{Concurrency: 2, PollInterval: 10 * time.Millisecond, UnitTimeout: time.Minute})
	results, err := c.CollectAll(ctx, Request{SessionID: session, Pending: seqs(4)})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, results, 2)
}

func TestStream_AllBreakStops(t *testing.T) {
	store := fptest.NewMemoryStore()
	completeAll(store, 3)

	c := New(store, Config{Concurrency: 1, PollInterval: 10 * time.Millisecond, UnitTimeout: time.Minute})
	stream, err := c.Stream(t.Context(), Request{SessionID: session, Pending: seqs(6)})
	require.NoError(t, err)

	got := 0
	for range stream.All() {
		got++
		if got == 2 {
			break
		}
	}

	require.True(t, stream.Stopped())
	stream.Wait()
}

func TestNew_AppliesDefaults(t *testing.T) {
	c := New(fptest.NewMemoryStore(), Config{})
	require.Equal(t, DefaultConfig(), c.Config())
}
