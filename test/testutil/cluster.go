package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/framepipe"
	"github.com/arloliu/framepipe/queue"
	"github.com/arloliu/framepipe/sink"
	"github.com/arloliu/framepipe/store"
	fptest "github.com/arloliu/framepipe/testing"
	"github.com/arloliu/framepipe/worker"
)

// StartEmbeddedNATS starts an embedded NATS server for integration tests.
// It wraps the framepipe/testing package function for convenience.
func StartEmbeddedNATS(t *testing.T) (*nats.Conn, func()) {
	t.Helper()
	srv, nc := fptest.StartEmbeddedNATS(t)
	cleanup := func() {
		nc.Close()
		srv.Shutdown()
		srv.WaitForShutdown()
	}

	return nc, cleanup
}

// IntegrationTestConfig provides default configuration for integration tests.
func IntegrationTestConfig() framepipe.Config {
	cfg := framepipe.TestConfig()
	cfg.Collector.Concurrency = 8
	cfg.Collector.PollInterval = 20 * time.Millisecond
	cfg.Collector.UnitTimeout = 10 * time.Second
	cfg.Worker.WorkerIDMax = 20              // Support up to 20 workers
	cfg.Worker.AckWait = 2 * time.Second     // Fast redelivery after a crashed worker
	cfg.Worker.RetryDelay = 20 * time.Millisecond
	framepipe.SetDefaults(&cfg)

	return cfg
}

// Cluster is an embedded NATS deployment with every JetStream component a
// session needs and a set of reference workers.
type Cluster struct {
	T      *testing.T
	NC     *nats.Conn
	JS     jetstream.JetStream
	Config framepipe.Config
	Queue  *queue.JetStream
	Store  *store.JetStream
	Sink   *sink.KV

	mu      sync.Mutex
	workers []*worker.Worker
}

// NewCluster starts an embedded NATS server and opens the queue, store and
// progress bucket described by cfg. Workers and the server are stopped when
// the test finishes.
//
// Parameters:
//   - t: Test instance
//   - cfg: Configuration shared by the pipeline and workers
//   - opts: Queue options (e.g. a shard strategy)
//
// Returns:
//   - *Cluster: Ready cluster without workers
func NewCluster(t *testing.T, cfg framepipe.Config, opts ...queue.Option) *Cluster {
	t.Helper()

	_, nc := fptest.StartEmbeddedNATS(t)
	js := fptest.NewJetStream(t, nc)
	ctx := t.Context()

	q, err := queue.OpenJetStream(ctx, js, cfg.QueueSettings(), opts...)
	require.NoError(t, err)
	st, err := store.OpenJetStream(ctx, js, cfg.StoreSettings())
	require.NoError(t, err)
	kv, err := sink.OpenKV(ctx, js, cfg.ProgressSettings())
	require.NoError(t, err)

	c := &Cluster{T: t, NC: nc, JS: js, Config: cfg, Queue: q, Store: st, Sink: kv}
	t.Cleanup(c.StopWorkers)

	return c
}

// AddWorker starts a worker consuming shards (all configured shards if none given).
//
// Parameters:
//   - id: Fixed worker ID
//   - shards: Queue shards this worker consumes
//   - opts: Additional worker options (registry, logger, ...)
//
// Returns:
//   - *worker.Worker: The started worker
func (c *Cluster) AddWorker(id string, shards []string, opts ...worker.Option) *worker.Worker {
	c.T.Helper()

	wcfg := c.Config.WorkerSettings()
	if len(shards) > 0 {
		wcfg.Shards = shards
		wcfg.ConsumerName = fmt.Sprintf("%s-%s", worker.DefaultConsumerName, shards[0])
	}

	opts = append([]worker.Option{worker.WithWorkerID(id)}, opts...)
	w, err := worker.New(c.JS, c.Store, wcfg, opts...)
	require.NoError(c.T, err)
	require.NoError(c.T, w.Start(c.T.Context()))

	c.mu.Lock()
	c.workers = append(c.workers, w)
	c.mu.Unlock()

	return w
}

// StopWorker stops a single worker, simulating a worker leaving mid-session.
func (c *Cluster) StopWorker(w *worker.Worker) {
	c.T.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = w.Stop(ctx)
}

// StopWorkers stops every worker started by the cluster.
func (c *Cluster) StopWorkers() {
	c.mu.Lock()
	workers := c.workers
	c.workers = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, w := range workers {
		_ = w.Stop(ctx)
	}
}

// NewPipeline creates a pipeline on the cluster's queue, store and progress bucket.
func (c *Cluster) NewPipeline(opts ...framepipe.Option) *framepipe.Pipeline {
	c.T.Helper()

	opts = append([]framepipe.Option{framepipe.WithSink(c.Sink)}, opts...)
	p, err := framepipe.NewPipeline(c.Config, c.Queue, c.Store, opts...)
	require.NoError(c.T, err)

	return p
}

// CreateTestUnits creates n distinct payloads of size bytes each.
func CreateTestUnits(n, size int) [][]byte {
	units := make([][]byte, n)
	for i := range units {
		u := make([]byte, size)
		for j := range u {
			u[j] = byte(i + j)
		}
		units[i] = u
	}

	return units
}
