package main

import (
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/arloliu/framepipe/internal/heartbeat"
	"github.com/arloliu/framepipe/internal/kvutil"
)

func newWorkersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List live workers from their heartbeats",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			cfg, _ := ctx.ensureConfig()
			js, err := ctx.jetStream(cmd.Context())
			if err != nil {
				return err
			}

			kv, err := kvutil.EnsureKVBucketWithRetry(cmd.Context(), js, jetstream.KeyValueConfig{
				Bucket:      cfg.Worker.HeartbeatBucket,
				Description: "framepipe worker heartbeats",
				TTL:         cfg.Worker.HeartbeatTTL,
			}, 3)
			if err != nil {
				return fmt.Errorf("open heartbeat bucket: %w", err)
			}

			beats, err := heartbeat.List(cmd.Context(), kv, heartbeatPrefix)
			if err != nil {
				return err
			}

			printBeats(cmd.OutOrStdout(), beats, time.Now())

			return nil
		},
	}
}

func printBeats(w io.Writer, beats []heartbeat.Beat, now time.Time) {
	if len(beats) == 0 {
		fmt.Fprintln(w, "no live workers")
		return
	}

	fmt.Fprintf(w, "%-16s %-20s %10s %8s %9s %8s\n", "WORKER", "HOST", "PROCESSED", "FAILED", "MEM(MB)", "AGE")
	for _, b := range beats {
		age := now.Sub(b.Timestamp).Round(100 * time.Millisecond)
		fmt.Fprintf(w, "%-16s %-20s %10d %8d %9.1f %8s\n",
			b.WorkerID, b.Hostname, b.UnitsProcessed, b.UnitsFailed, b.MemoryMB, age)
	}
}
