package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/framepipe/internal/heartbeat"
	"github.com/arloliu/framepipe/sink"
	fptest "github.com/arloliu/framepipe/testing"
	"github.com/arloliu/framepipe/types"
)

func TestStreamProgress_StopsOnTerminalStatus(t *testing.T) {
	_, nc := fptest.StartEmbeddedNATS(t)
	js := fptest.NewJetStream(t, nc)
	ctx := t.Context()

	kv, err := sink.OpenKV(ctx, js, sink.KVConfig{Bucket: "watch-progress"})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "s1", types.FieldStatus, "active"))
	require.NoError(t, kv.Set(ctx, "s1", types.FieldUnitsDone, "3"))
	require.NoError(t, kv.Set(ctx, "other", types.FieldUnitsDone, "9"))

	watcher, err := kv.Watch(ctx, "s1")
	require.NoError(t, err)
	defer func() { _ = watcher.Stop() }()

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = kv.Set(context.Background(), "s1", types.FieldUnitsDone, "10")
		_ = kv.Set(context.Background(), "s1", types.FieldStatus, "completed")
	}()

	var out bytes.Buffer
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	require.NoError(t, streamProgress(runCtx, watcher, &out, true))
	require.NoError(t, runCtx.Err(), "must stop on the terminal status, not the timeout")

	text := out.String()
	require.Contains(t, text, "s1 units_done     10")
	require.Contains(t, text, "s1 status         completed")
	require.NotContains(t, text, "other")
}

func TestWatchCommand_Once(t *testing.T) {
	srv, nc := fptest.StartEmbeddedNATS(t)
	js := fptest.NewJetStream(t, nc)

	kv, err := sink.OpenKV(t.Context(), js, sink.KVConfig{TTL: time.Hour})
	require.NoError(t, err)
	require.NoError(t, kv.Set(t.Context(), "abc", types.FieldProgressPct, "50"))
	require.NoError(t, kv.Set(t.Context(), "abc", types.FieldStatus, "active"))

	stdout, err := execute(t, "--nats-url", srv.ClientURL(), "watch", "abc", "--once")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "abc progress_pct"))
	require.True(t, strings.HasPrefix(lines[1], "abc status"))

	_, err = execute(t, "--nats-url", srv.ClientURL(), "watch", "missing", "--once")
	require.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestIsTerminalStatus(t *testing.T) {
	require.True(t, isTerminalStatus("completed"))
	require.True(t, isTerminalStatus("failed"))
	require.True(t, isTerminalStatus("aborted"))
	require.False(t, isTerminalStatus("active"))
	require.False(t, isTerminalStatus(""))
}

func TestPrintBeats(t *testing.T) {
	now := time.Now()
	var out bytes.Buffer
	printBeats(&out, []heartbeat.Beat{
		{
			WorkerID:  "worker-0",
			Hostname:  "host-a",
			Timestamp: now.Add(-time.Second),
			Status:    heartbeat.Status{UnitsProcessed: 12, UnitsFailed: 1, MemoryMB: 42.5},
		},
	}, now)

	text := out.String()
	require.Contains(t, text, "WORKER")
	require.Contains(t, text, "worker-0")
	require.Contains(t, text, "42.5")
	require.Contains(t, text, "1s")
}
