// Package heartbeat publishes worker liveness records to a NATS KV bucket.
//
// Each worker periodically writes a JSON Beat under {prefix}.{workerID}. The
// bucket's TTL (about 3x the interval) removes the key of a crashed worker,
// so the set of present keys is the set of live workers. Stop deletes the
// key immediately on clean shutdown.
//
// Example:
//
//	publisher := heartbeat.New(kv, "worker-hb", "worker-1", 2*time.Second,
//	    heartbeat.WithStatus(func() heartbeat.Status { return w.Status() }),
//	)
//	if err := publisher.Start(ctx); err != nil {
//	    return err
//	}
//	defer publisher.Stop()
//
//	beats, err := heartbeat.List(ctx, kv, "worker-hb")
package heartbeat
