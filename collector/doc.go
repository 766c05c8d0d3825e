// Package collector discovers completed units in a shared result store.
//
// Workers write an artifact and a metadata record for each unit they finish.
// The Collector polls the store for a closed set of pending sequence numbers
// with a fixed pool of watchers, so at most Concurrency units are being
// checked at any instant regardless of session size. Every unit resolves
// exactly once: as a success when both keys exist, or as a failure when its
// own deadline elapses. Timeouts are results, not errors.
//
// Results arrive in completion order, not sequence order. Use the reorder
// package to restore sequence order.
//
// Streaming:
//
//	stream, err := c.Stream(ctx, collector.Request{
//	    SessionID: session.ID(),
//	    Pending:   session.Pending(),
//	    OnResult:  func(r types.UnitResult) { log.Printf("unit %d done", r.Seq) },
//	})
//	if err != nil {
//	    return err
//	}
//	defer stream.Stop()
//
//	for r := range stream.Results() {
//	    handle(r)
//	}
//
// Collect-all:
//
//	results, err := c.CollectAll(ctx, req)
package collector
