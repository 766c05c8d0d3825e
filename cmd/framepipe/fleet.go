package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/framepipe"
	"github.com/arloliu/framepipe/internal/kvutil"
	"github.com/arloliu/framepipe/queue"
	"github.com/arloliu/framepipe/store"
	"github.com/arloliu/framepipe/types"
	"github.com/arloliu/framepipe/worker"
)

// heartbeatPrefix is the key prefix of worker heartbeats in the heartbeat bucket.
const heartbeatPrefix = "hb"

// fleetOptions describes a set of in-process workers.
type fleetOptions struct {
	count    int
	workerID string
	metrics  types.WorkerMetrics
	logger   types.Logger
}

// fleet is a group of started workers sharing one consumer.
type fleet struct {
	workers []*worker.Worker
	logger  types.Logger
}

// openResultStore returns the FS store when dir is set and the JetStream store otherwise.
func openResultStore(ctx context.Context, js jetstream.JetStream, cfg framepipe.Config, dir string, logger types.Logger) (framepipe.ResultStore, types.ResultWriter, error) {
	if dir != "" {
		fs, err := store.NewFS(dir)
		if err != nil {
			return nil, nil, err
		}

		return fs, fs, nil
	}

	st, err := store.OpenJetStream(ctx, js, cfg.StoreSettings(), store.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	return st, st, nil
}

// startFleet ensures the unit stream and coordination buckets exist, then
// starts opts.count workers. A fixed workerID only applies to a single worker.
func startFleet(ctx context.Context, js jetstream.JetStream, cfg framepipe.Config, writer types.ResultWriter, opts fleetOptions) (*fleet, error) {
	if opts.count < 1 {
		return nil, fmt.Errorf("%w: worker count must be >= 1", framepipe.ErrInvalidConfig)
	}
	if opts.workerID != "" && opts.count > 1 {
		return nil, fmt.Errorf("%w: --worker-id requires a single worker", framepipe.ErrInvalidConfig)
	}

	if _, err := queue.OpenJetStream(ctx, js, cfg.QueueSettings()); err != nil {
		return nil, err
	}

	idKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.Worker.StableIDBucket,
		Description: "framepipe worker ID claims",
		TTL:         cfg.Worker.WorkerIDTTL,
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("open stable ID bucket: %w", err)
	}

	hbKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.Worker.HeartbeatBucket,
		Description: "framepipe worker heartbeats",
		TTL:         cfg.Worker.HeartbeatTTL,
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("open heartbeat bucket: %w", err)
	}

	f := &fleet{logger: opts.logger}
	for range opts.count {
		wopts := []worker.Option{
			worker.WithLogger(opts.logger),
			worker.WithHeartbeat(hbKV, heartbeatPrefix),
		}
		if opts.metrics != nil {
			wopts = append(wopts, worker.WithMetrics(opts.metrics))
		}
		if opts.workerID != "" {
			wopts = append(wopts, worker.WithWorkerID(opts.workerID))
		} else {
			wopts = append(wopts, worker.WithStableID(idKV, cfg.Worker.WorkerIDPrefix,
				cfg.Worker.WorkerIDMin, cfg.Worker.WorkerIDMax, cfg.Worker.WorkerIDTTL))
		}

		w, err := worker.New(js, writer, cfg.WorkerSettings(), wopts...)
		if err == nil {
			err = w.Start(ctx)
		}
		if err != nil {
			f.stop(context.Background())
			return nil, err
		}
		f.workers = append(f.workers, w)
	}

	return f, nil
}

// stop stops every worker and returns the joined errors.
func (f *fleet) stop(ctx context.Context) error {
	var errs []error
	for _, w := range f.workers {
		id := w.WorkerID()
		if err := w.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", id, err))
		}
		f.logger.Info("worker stopped", "worker_id", id, "processed", w.Processed(), "failed", w.Failed())
	}
	f.workers = nil

	return errors.Join(errs...)
}
