package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arloliu/framepipe"
	"github.com/arloliu/framepipe/types"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var (
		count       int
		shards      []string
		workerID    string
		storeDir    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run reference workers until interrupted",
		Long: "Consume unit tasks from the queue, apply the requested operation and write " +
			"results to the store. Workers claim stable IDs and publish heartbeats.",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer ctx.close()

			cfg, _ := ctx.ensureConfig()
			if len(shards) > 0 {
				cfg.Queue.Shards = shards
			}
			logger := ctx.logger

			js, err := ctx.jetStream(runCtx)
			if err != nil {
				return err
			}

			_, writer, err := openResultStore(runCtx, js, cfg, storeDir, logger)
			if err != nil {
				return err
			}

			var m types.WorkerMetrics
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				m = framepipe.NewPrometheusMetrics(reg, "")
				srv, err := startMetricsServer(metricsAddr, reg, logger)
				if err != nil {
					return err
				}
				defer func() { _ = srv.Shutdown() }()
			}

			f, err := startFleet(runCtx, js, cfg, writer, fleetOptions{
				count:    count,
				workerID: workerID,
				metrics:  m,
				logger:   logger,
			})
			if err != nil {
				return err
			}

			<-runCtx.Done()
			logger.Info("shutting down workers")

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			return f.stop(stopCtx)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of workers to run in this process")
	cmd.Flags().StringSliceVar(&shards, "shards", nil, "Queue shards to consume (default from config)")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "Fixed worker ID instead of a claimed stable ID")
	cmd.Flags().StringVar(&storeDir, "store-dir", "", "Write results to a directory instead of JetStream")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}
