// Package worker is a reference worker runtime for the unit queue.
//
// A Worker pulls unit tasks from a durable JetStream consumer, applies the
// requested operation, and writes the artifact and its metadata record to a
// ResultWriter, artifact first. Failed operations are redelivered by the
// broker with a delay until MaxDeliver; on the last attempt the worker writes
// the original payload together with metadata carrying an "error" field, so
// the collector resolves the unit as a failure instead of waiting for its
// timeout.
//
// Workers can claim a short stable ID from a KV bucket and publish liveness
// heartbeats to another.
//
// Basic usage:
//
//	w, err := worker.New(js, resultStore, worker.Config{Shards: []string{"default"}},
//	    worker.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop(context.Background())
package worker
