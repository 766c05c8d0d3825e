// Package framepipe distributes per-unit processing of an ordered artifact
// across a pool of independent workers and reassembles their out-of-order
// results into a single ordered output while reporting live progress.
//
// A typical artifact is a video whose frames are the units. Workers may be
// slow, may fail, and may complete units in any order; framepipe discovers
// completed units in a shared result store, enforces a per-unit deadline,
// substitutes a fallback for units that never succeed, and hands the Writer
// exactly one entry per unit in strictly ascending order.
//
// # Quick Start
//
//	import (
//	    "github.com/arloliu/framepipe"
//	    "github.com/arloliu/framepipe/queue"
//	    "github.com/arloliu/framepipe/sink"
//	    "github.com/arloliu/framepipe/source"
//	    "github.com/arloliu/framepipe/store"
//	)
//
//	cfg := framepipe.DefaultConfig()
//	q, _ := queue.OpenJetStream(ctx, js, cfg.QueueSettings())
//	st, _ := store.OpenJetStream(ctx, js, cfg.StoreSettings())
//	progress, _ := sink.OpenKV(ctx, js, cfg.ProgressSettings())
//
//	p, err := framepipe.NewPipeline(cfg, q, st, framepipe.WithSink(progress))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := p.Process(ctx, source.NewStatic(frames), framepipe.Directive{Operation: "invert"}, out)
//
// # Key Features
//
//   - Bounded collection: at most Collector.Concurrency units are polled at once
//   - Per-unit deadline: a unit that does not appear within Collector.UnitTimeout
//     resolves as a failure and its slot gets fallback data
//   - Strict ordering: the reorder buffer emits each unit exactly once, ascending
//   - Live progress: throughput, ETA, completion percent and latency percentiles
//     published to a ProgressSink (NATS KV or Redis)
//   - Idempotent submission: JetStream deduplicates resubmitted units
//
// # Architecture
//
//	Dispatcher → TaskQueue → workers → ResultStore → Collector → Reorder Buffer → Writer
//	                                                     │
//	                                                     └──→ Aggregator → ProgressSink
//
// Sessions move through a small state machine:
//
//	active → completed | failed | aborted
//
// Only a submission failure after retries fails a session. Timeouts, worker
// errors and unparsable metadata are per-unit data carried by UnitResult.
//
// The worker package provides a reference worker that consumes the task
// stream and writes results to the store. See the examples/ directory and
// cmd/framepipe for complete programs.
package framepipe
