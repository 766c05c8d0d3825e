package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/framepipe/internal/heartbeat"
	"github.com/arloliu/framepipe/queue"
	fptest "github.com/arloliu/framepipe/testing"
	"github.com/arloliu/framepipe/types"
)

func unitTask(sessionID string, seq int, op string, payload []byte) types.UnitTask {
	return types.UnitTask{
		SessionID: sessionID,
		Seq:       seq,
		Payload:   payload,
		Digest:    xxh3.Hash(payload),
		Directive: types.Directive{Operation: op},
		CreatedAt: time.Now(),
	}
}

func readMetadata(t *testing.T, store *fptest.MemoryStore, sessionID string, seq int) types.Metadata {
	t.Helper()

	entry, err := store.Lookup(t.Context(), sessionID, seq)
	require.NoError(t, err)
	require.True(t, entry.Ready())

	var md types.Metadata
	require.NoError(t, json.Unmarshal(entry.Metadata, &md))

	return md
}

func waitReady(t *testing.T, store *fptest.MemoryStore, sessionID string, seq int) {
	t.Helper()

	require.Eventually(t, func() bool {
		entry, err := store.Lookup(context.Background(), sessionID, seq)
		return err == nil && entry.Ready()
	}, 10*time.Second, 20*time.Millisecond)
}

type harness struct {
	queue *queue.JetStream
	store *fptest.MemoryStore
	cfg   Config
}

func newHarness(t *testing.T) (*harness, func(opts ...Option) *Worker) {
	t.Helper()

	_, nc := fptest.StartEmbeddedNATS(t)
	js := fptest.NewJetStream(t, nc)

	q, err := queue.OpenJetStream(t.Context(), js, queue.Config{})
	require.NoError(t, err)

	h := &harness{
		queue: q,
		store: fptest.NewMemoryStore(),
		cfg: Config{
			MaxDeliver:   3,
			RetryDelay:   10 * time.Millisecond,
			FetchTimeout: time.Second,
		},
	}

	build := func(opts ...Option) *Worker {
		opts = append([]Option{WithLogger(fptest.NewTestLogger(t))}, opts...)
		w, err := New(js, h.store, h.cfg, opts...)
		require.NoError(t, err)

		return w
	}

	return h, build
}

func startWorker(t *testing.T, w *Worker) {
	t.Helper()

	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, fptest.NewMemoryStore(), Config{})
	require.Error(t, err)

	_, nc := fptest.StartEmbeddedNATS(t)
	_, err = New(fptest.NewJetStream(t, nc), nil, Config{})
	require.ErrorIs(t, err, types.ErrStoreRequired)
}

func TestWorker_ProcessesUnits(t *testing.T) {
	h, build := newHarness(t)
	w := build(WithWorkerID("w-1"), WithHostname("host-a"))
	startWorker(t, w)

	for seq := range 3 {
		require.NoError(t, h.queue.Submit(t.Context(), unitTask("s1", seq, OpInvert, []byte{byte(seq)})))
	}

	for seq := range 3 {
		waitReady(t, h.store, "s1", seq)

		data, err := h.store.ReadArtifact(t.Context(), "s1", seq)
		require.NoError(t, err)
		require.Equal(t, []byte{^byte(seq)}, data)

		md := readMetadata(t, h.store, "s1", seq)
		require.Equal(t, "w-1", md.WorkerID)
		require.Equal(t, "host-a", md.Hostname)
		require.Equal(t, OpInvert, md.Operation)
		require.Empty(t, md.Error)
		require.Positive(t, md.MemoryMB)
	}
	require.Eventually(t, func() bool { return w.Processed() == 3 }, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	h, build := newHarness(t)

	var calls atomic.Int32
	registry := NewRegistry()
	registry.Register("flaky", func(_ context.Context, payload []byte, _ map[string]string) ([]byte, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}

		return payload, nil
	})
	w := build(WithRegistry(registry), WithWorkerID("w-1"))
	startWorker(t, w)

	require.NoError(t, h.queue.Submit(t.Context(), unitTask("s1", 0, "flaky", []byte("ok"))))
	waitReady(t, h.store, "s1", 0)

	require.Equal(t, int32(3), calls.Load())
	require.Empty(t, readMetadata(t, h.store, "s1", 0).Error)
}

func TestWorker_FinalAttemptRecordsError(t *testing.T) {
	h, build := newHarness(t)

	var calls atomic.Int32
	registry := NewRegistry()
	registry.Register("broken", func(context.Context, []byte, map[string]string) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("decoder exploded")
	})
	w := build(WithRegistry(registry), WithWorkerID("w-1"))
	startWorker(t, w)

	require.NoError(t, h.queue.Submit(t.Context(), unitTask("s1", 0, "broken", []byte("orig"))))
	waitReady(t, h.store, "s1", 0)

	md := readMetadata(t, h.store, "s1", 0)
	require.Equal(t, "decoder exploded", md.Error)
	require.Equal(t, "broken", md.Operation)

	data, err := h.store.ReadArtifact(t.Context(), "s1", 0)
	require.NoError(t, err)
	require.Equal(t, []byte("orig"), data)
	require.Equal(t, int32(h.cfg.MaxDeliver), calls.Load())
	require.Eventually(t, func() bool { return w.Failed() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_UnknownOperationFailsImmediately(t *testing.T) {
	h, build := newHarness(t)
	w := build(WithWorkerID("w-1"))
	startWorker(t, w)

	require.NoError(t, h.queue.Submit(t.Context(), unitTask("s1", 0, "sharpen", []byte("x"))))
	waitReady(t, h.store, "s1", 0)

	md := readMetadata(t, h.store, "s1", 0)
	require.Contains(t, md.Error, "unknown operation")
}

func TestWorker_DropsCorruptedTask(t *testing.T) {
	h, build := newHarness(t)
	w := build(WithWorkerID("w-1"))
	startWorker(t, w)

	bad := unitTask("s1", 0, OpIdentity, []byte("payload"))
	bad.Digest++
	require.NoError(t, h.queue.Submit(t.Context(), bad))
	require.NoError(t, h.queue.Submit(t.Context(), unitTask("s1", 1, OpIdentity, []byte("good"))))

	waitReady(t, h.store, "s1", 1)
	entry, err := h.store.Lookup(t.Context(), "s1", 0)
	require.NoError(t, err)
	require.False(t, entry.ArtifactPresent)
	require.False(t, entry.MetadataPresent)
}

func TestWorker_StableIDAndHeartbeat(t *testing.T) {
	_, nc := fptest.StartEmbeddedNATS(t)
	js := fptest.NewJetStream(t, nc)
	ids := fptest.CreateJetStreamKV(t, nc, "worker-ids")
	beats := fptest.CreateJetStreamKV(t, nc, "worker-heartbeats")

	_, err := queue.OpenJetStream(t.Context(), js, queue.Config{})
	require.NoError(t, err)

	cfg := Config{HeartbeatInterval: 50 * time.Millisecond, FetchTimeout: time.Second}
	first, err := New(js, fptest.NewMemoryStore(), cfg,
		WithStableID(ids, "worker", 0, 1, time.Minute), WithHeartbeat(beats, "hb"))
	require.NoError(t, err)
	second, err := New(js, fptest.NewMemoryStore(), cfg,
		WithStableID(ids, "worker", 0, 1, time.Minute), WithHeartbeat(beats, "hb"))
	require.NoError(t, err)
	third, err := New(js, fptest.NewMemoryStore(), cfg, WithStableID(ids, "worker", 0, 1, time.Minute))
	require.NoError(t, err)

	startWorker(t, first)
	startWorker(t, second)
	require.Equal(t, "worker-0", first.WorkerID())
	require.Equal(t, "worker-1", second.WorkerID())

	err = third.Start(t.Context())
	require.ErrorIs(t, err, types.ErrIDClaimFailed)

	require.Eventually(t, func() bool {
		list, err := heartbeat.List(context.Background(), beats, "hb")
		return err == nil && len(list) == 2
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, first.Stop(t.Context()))
	require.Empty(t, first.WorkerID())
	require.ErrorIs(t, first.Stop(t.Context()), types.ErrNotStarted)

	require.NoError(t, third.Start(t.Context()))
	require.Equal(t, "worker-0", third.WorkerID())
	require.NoError(t, third.Stop(t.Context()))
}

func TestWorker_StartTwice(t *testing.T) {
	_, build := newHarness(t)
	w := build(WithWorkerID("w-1"))
	startWorker(t, w)

	require.ErrorIs(t, w.Start(t.Context()), types.ErrAlreadyStarted)
}
