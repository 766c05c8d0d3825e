package framepipe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/framepipe/queue"
	"github.com/arloliu/framepipe/sink"
	"github.com/arloliu/framepipe/source"
	"github.com/arloliu/framepipe/store"
	fptest "github.com/arloliu/framepipe/testing"
	"github.com/arloliu/framepipe/types"
	"github.com/arloliu/framepipe/worker"
)

func TestPipeline_JetStreamEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	_, nc := fptest.StartEmbeddedNATS(t)
	js := fptest.NewJetStream(t, nc)
	logger := fptest.NewTestLogger(t)

	cfg := TestConfig()
	cfg.Queue.Shards = []string{"a", "b"}
	cfg.Collector.UnitTimeout = 10 * time.Second

	q, err := queue.OpenJetStream(t.Context(), js, cfg.QueueSettings(), queue.WithLogger(logger))
	require.NoError(t, err)
	st, err := store.OpenJetStream(t.Context(), js, cfg.StoreSettings(), store.WithLogger(logger))
	require.NoError(t, err)
	progressKV, err := sink.OpenKV(t.Context(), js, cfg.ProgressSettings())
	require.NoError(t, err)

	// Two workers share the durable consumer over both shards.
	for _, id := range []string{"w-0", "w-1"} {
		w, err := worker.New(js, st, cfg.WorkerSettings(), worker.WithWorkerID(id), worker.WithLogger(logger))
		require.NoError(t, err)
		require.NoError(t, w.Start(t.Context()))
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = w.Stop(ctx)
		})
	}

	p, err := NewPipeline(cfg, q, st, WithSink(progressKV), WithLogger(logger))
	require.NoError(t, err)

	units := frames(12)
	writer := fptest.NewRecordingWriter()
	report, err := p.Process(t.Context(), source.NewStatic(units), Directive{Operation: worker.OpInvert}, writer)
	require.NoError(t, err)

	require.Equal(t, SessionCompleted, report.State)
	require.Empty(t, report.Failed)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, writer.Seqs())
	for i, e := range writer.Entries() {
		want := make([]byte, len(units[i]))
		for j, b := range units[i] {
			want[j] = ^b
		}
		require.Equal(t, want, e.Data)
		require.Contains(t, []string{"w-0", "w-1"}, e.Result.Metadata.WorkerID)
	}

	fields, err := progressKV.Fields(t.Context(), report.SessionID)
	require.NoError(t, err)
	require.Equal(t, "completed", fields[types.FieldStatus])
	require.Equal(t, "100", fields[types.FieldProgressPct])
	require.Equal(t, "12", fields[types.FieldUnitsDone])
	require.Equal(t, "12", fields[types.FieldTotalUnits])
}
