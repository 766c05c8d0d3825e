// Package queue implements the task queue on a JetStream stream.
//
// Each unit task is published as JSON to "<prefix>.<shard>", where the shard
// is chosen by a types.ShardStrategy. The stream uses work-queue retention so
// a task is removed once a worker acknowledges it, and the task key
// "<session>.<seq>" is sent as the Nats-Msg-Id header so a resubmission inside
// the duplicate window is dropped by the server. That makes Submit safe to
// retry after an ambiguous failure.
//
// Payloads travel inline; keep units below the server's max_payload.
package queue
